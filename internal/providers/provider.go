package providers

import (
	"context"
)

// TextGenerator produces free text from a single instruction prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts TextOptions) (string, error)
}

// ImageGenerator synthesises one image from a prompt, optionally conditioned
// on a reference photo. Implementations normalise provider output (inline
// binary or base64) into raw bytes before returning.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*ImagePayload, error)
}

// TextOptions tunes a single text call. Nil fields keep provider defaults.
type TextOptions struct {
	Temperature *float32
}

// ImageOptions tunes a single image call.
type ImageOptions struct {
	AspectRatio string
	// Reference holds raw bytes of the character photo for image-edit style
	// generation; empty means pure text-to-image.
	Reference []byte
}

// ImagePayload is the normalised result of an image call.
type ImagePayload struct {
	Data     []byte
	MimeType string
}
