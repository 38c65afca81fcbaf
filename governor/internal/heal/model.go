package heal

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Prompt is one request to a language model. Image is optional.
type Prompt struct {
	Text      string
	Image     []byte
	ImageMIME string
}

// Model is a language model returning free-form text.
type Model interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, p Prompt) (string, error)

func (f ModelFunc) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// MaxOutputTokens caps model output; a selector never needs more.
const MaxOutputTokens = 200

// GenAIModel calls Gemini through google.golang.org/genai.
type GenAIModel struct {
	client *genai.Client
	model  string
}

// NewGenAIModel creates a Gemini-backed model.
func NewGenAIModel(ctx context.Context, apiKey, model string) (*GenAIModel, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("heal: genai client: %w", err)
	}
	return &GenAIModel{client: client, model: model}, nil
}

func (m *GenAIModel) Generate(ctx context.Context, p Prompt) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(p.Text)}
	if len(p.Image) > 0 {
		mime := p.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(p.Image, mime))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: MaxOutputTokens,
		Temperature:     genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("heal: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	return text, nil
}
