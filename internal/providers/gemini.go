package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/monkeycs60/vincent/internal/app"
)

const defaultCallTimeout = 2 * time.Minute

// Gemini implements TextGenerator and ImageGenerator over the Gemini API.
// One client serves both capabilities with separate model names.
type Gemini struct {
	client     *genai.Client
	textModel  string
	imageModel string
	timeout    time.Duration
}

var (
	_ TextGenerator  = (*Gemini)(nil)
	_ ImageGenerator = (*Gemini)(nil)
)

// NewGemini initialises the Gemini client from provider configuration.
func NewGemini(ctx context.Context, cfg app.GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	return &Gemini{
		client:     client,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		timeout:    timeout,
	}, nil
}

// GenerateText runs a single text completion and returns the trimmed output.
func (g *Gemini) GenerateText(ctx context.Context, prompt string, opts TextOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var config *genai.GenerateContentConfig
	if opts.Temperature != nil {
		config = &genai.GenerateContentConfig{Temperature: opts.Temperature}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate text: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty text response")
	}
	return text, nil
}

// GenerateImage runs a single image generation, optionally conditioned on a
// reference photo passed as an inline part.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*ImagePayload, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := []*genai.Part{{Text: prompt}}
	if part := inlineImagePart(opts.Reference); part != nil {
		parts = append(parts, part)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if opts.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: opts.AspectRatio}
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate image: %w", err)
	}

	payload, err := payloadFromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return payload, nil
}

// inlineImagePart wraps raw reference bytes into an inline part, or nil when
// the bytes are empty or not an image.
func inlineImagePart(data []byte) *genai.Part {
	if len(data) == 0 {
		return nil
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

// payloadFromResponse extracts the first image part of a response.
func payloadFromResponse(resp *genai.GenerateContentResponse) (*ImagePayload, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("invalid response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return nil, errors.New("no image data")
	}

	for _, part := range candidate.Content.Parts {
		if part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		data, mimeType, err := normalizeImageBytes(part.InlineData.Data, part.InlineData.MIMEType)
		if err != nil {
			return nil, err
		}
		return &ImagePayload{Data: data, MimeType: mimeType}, nil
	}

	return nil, errors.New("no image data")
}

// normalizeImageBytes accepts either raw image bytes or a base64 encoding of
// them and always returns raw bytes. Some provider transports deliver inline
// data still base64-encoded.
func normalizeImageBytes(data []byte, declaredMime string) ([]byte, string, error) {
	if mimeType := http.DetectContentType(data); strings.HasPrefix(mimeType, "image/") {
		return data, mimeType, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err == nil {
		if mimeType := http.DetectContentType(decoded); strings.HasPrefix(mimeType, "image/") {
			return decoded, mimeType, nil
		}
	}

	return nil, "", fmt.Errorf("part declared %q but carried no decodable image", declaredMime)
}
