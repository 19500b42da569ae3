package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/monkeycs60/vincent/internal/providers"
)

// Persona is the fixed description of the recurring character. It is injected
// into every instruction; the text provider is never asked to invent it.
const Persona = "Vincent, a senior software developer in his fifties, wearing glasses, " +
	"dressed entirely in black, with a cynical and sarcastic attitude toward modern tech"

const (
	titleTemperature     float32 = 0.8
	punchlineTemperature float32 = 0.7

	// MaxPunchlineLen bounds the sarcastic one-liner shown under each image.
	MaxPunchlineLen = 100
)

// HistoryEntry is one prior generation the composer steers away from.
type HistoryEntry struct {
	Title string
	Style string
}

// TitleAndStyle is the first output of a generation run.
type TitleAndStyle struct {
	Title string
	Style string
}

// Composer builds the natural-language instructions that drive generation and
// parses the provider's replies.
type Composer struct {
	text providers.TextGenerator
}

// NewComposer constructs a Composer once a text provider is supplied.
func NewComposer(text providers.TextGenerator) (*Composer, error) {
	if text == nil {
		return nil, errors.New("composer: text generator is required")
	}
	return &Composer{text: text}, nil
}

// ComposeTitleAndStyle asks for a fresh title and art-style descriptor,
// embedding the recent history so the provider is told explicitly what not to
// repeat. A title byte-identical to a history entry is retried once, then
// rejected.
func (c *Composer) ComposeTitleAndStyle(ctx context.Context, history []HistoryEntry) (TitleAndStyle, error) {
	instruction := c.titleInstruction(history, false)

	result, err := c.requestTitleAndStyle(ctx, instruction)
	if err != nil {
		return TitleAndStyle{}, err
	}

	if !titleSeen(result.Title, history) {
		return result, nil
	}

	result, err = c.requestTitleAndStyle(ctx, c.titleInstruction(history, true))
	if err != nil {
		return TitleAndStyle{}, err
	}
	if titleSeen(result.Title, history) {
		return TitleAndStyle{}, fmt.Errorf("composer: provider repeated the title %q", result.Title)
	}
	return result, nil
}

func (c *Composer) requestTitleAndStyle(ctx context.Context, instruction string) (TitleAndStyle, error) {
	temp := titleTemperature
	raw, err := c.text.GenerateText(ctx, instruction, providers.TextOptions{Temperature: &temp})
	if err != nil {
		return TitleAndStyle{}, fmt.Errorf("composer: title and style: %w", err)
	}
	return parseTitleAndStyle(raw)
}

func (c *Composer) titleInstruction(history []HistoryEntry, stern bool) string {
	var sb strings.Builder

	sb.WriteString("Invent a creative title for a humorous image featuring ")
	sb.WriteString(Persona)
	sb.WriteString(", placed in a rich, unexpected universe (comics, space opera, western, manga...). ")
	sb.WriteString("Format: 'Vincent in [unusual context] [comic situation]'. ")
	sb.WriteString("Also choose one original artistic style for the image, described in a few words ")
	sb.WriteString("without naming any real artist or franchise.\n\n")

	if len(history) > 0 {
		sb.WriteString("These titles have already been used, do not reuse or rephrase any of them:\n")
		for _, entry := range history {
			fmt.Fprintf(&sb, "- %s\n", entry.Title)
		}
		styles := historyStyles(history)
		if len(styles) > 0 {
			sb.WriteString("These artistic styles have already been used, pick something different:\n")
			for _, style := range styles {
				fmt.Fprintf(&sb, "- %s\n", style)
			}
		}
		sb.WriteString("\n")
	}

	if stern {
		sb.WriteString("Your previous answer reused an existing title. Produce a completely new one.\n\n")
	}

	sb.WriteString("Answer with exactly two lines:\nTITLE: <the title>\nSTYLE: <the style>")
	return sb.String()
}

// ComposeImagePrompt translates the title into a purely visual description,
// folding in the chosen style, the persona constraints and, when available,
// the style-history analysis.
func (c *Composer) ComposeImagePrompt(ctx context.Context, title, style, styleNotes string) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write a detailed prompt for generating a humorous, professional-quality image based on this title: %q.\n", title)
	sb.WriteString("The prompt must precisely describe ")
	sb.WriteString(Persona)
	sb.WriteString(" in a scene matching the title.\n")
	if style != "" {
		fmt.Fprintf(&sb, "The image must be rendered in this artistic style: %s. ", style)
		sb.WriteString("Describe the style with paraphrases only, never by naming real artists or franchises.\n")
	}
	if styleNotes != "" {
		fmt.Fprintf(&sb, "Here is an analysis of previously used styles: %q. Stay away from the styles it lists as used.\n", styleNotes)
	}
	sb.WriteString("Do not quote the title itself in the prompt; translate it into visual elements. ")
	sb.WriteString("Answer with the prompt text only.")

	prompt, err := c.text.GenerateText(ctx, sb.String(), providers.TextOptions{})
	if err != nil {
		return "", fmt.Errorf("composer: image prompt: %w", err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("composer: empty image prompt")
	}
	return prompt, nil
}

// ComposePunchline produces the short sarcastic caption. Over-long provider
// output is truncated at a word boundary.
func (c *Composer) ComposePunchline(ctx context.Context, title string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write one short sarcastic punchline (at most %d characters) that Vincent could say, ", MaxPunchlineLen)
	fmt.Fprintf(&sb, "related to this title: %q. ", title)
	sb.WriteString("It must be cynical, technical, and reference the world of software development. ")
	sb.WriteString("Answer with the punchline only, no quotes.")

	temp := punchlineTemperature
	punchline, err := c.text.GenerateText(ctx, sb.String(), providers.TextOptions{Temperature: &temp})
	if err != nil {
		return "", fmt.Errorf("composer: punchline: %w", err)
	}

	punchline = strings.Trim(strings.TrimSpace(punchline), `"`)
	if punchline == "" {
		return "", errors.New("composer: empty punchline")
	}
	return truncateAtWord(punchline, MaxPunchlineLen), nil
}

// AnalyzeStyleHistory summarises the styles of recent prompts into avoid/try
// guidance. An empty input short-circuits without a provider call.
func (c *Composer) AnalyzeStyleHistory(ctx context.Context, prompts []string) (string, error) {
	if len(prompts) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Analyse these image prompts:\n")
	for _, p := range prompts {
		fmt.Fprintf(&sb, "- %q\n", p)
	}
	sb.WriteString("Identify the artistic styles already used and suggest 3 different original styles to explore. ")
	sb.WriteString("Answer only with the list of styles to avoid followed by the list of 3 suggestions.")

	analysis, err := c.text.GenerateText(ctx, sb.String(), providers.TextOptions{})
	if err != nil {
		return "", fmt.Errorf("composer: style analysis: %w", err)
	}
	return strings.TrimSpace(analysis), nil
}

func parseTitleAndStyle(raw string) (TitleAndStyle, error) {
	var result TitleAndStyle

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*"))
		switch {
		case hasFoldPrefix(line, "TITLE:"):
			result.Title = cleanLabelValue(line[len("TITLE:"):])
		case hasFoldPrefix(line, "STYLE:"):
			result.Style = cleanLabelValue(line[len("STYLE:"):])
		}
	}

	if result.Title == "" {
		return TitleAndStyle{}, fmt.Errorf("composer: no TITLE line in response %q", raw)
	}
	if result.Style == "" {
		return TitleAndStyle{}, fmt.Errorf("composer: no STYLE line in response %q", raw)
	}
	return result, nil
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func cleanLabelValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

func titleSeen(title string, history []HistoryEntry) bool {
	for _, entry := range history {
		if entry.Title == title {
			return true
		}
	}
	return false
}

func historyStyles(history []HistoryEntry) []string {
	var styles []string
	for _, entry := range history {
		if s := strings.TrimSpace(entry.Style); s != "" {
			styles = append(styles, s)
		}
	}
	return styles
}

// truncateAtWord caps s at limit characters, never splitting a rune.
func truncateAtWord(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	end := 0
	for i := 0; i < limit; i++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	cut := s[:end]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:")
}
