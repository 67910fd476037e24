package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider implements the Provider interface using the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGemini creates a new Gemini provider.
func NewGemini(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider identifier.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Generate produces a reply using multi-turn conversation contents.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, history []Exchange, opts GenerateOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	model := opts.Model
	if model == "" {
		model = geminiDefaultModel
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = opts.MaxOutputTokens
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, buildContents(prompt, history), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty reply")
	}
	return text, nil
}

// buildContents lays out prior exchanges as alternating user/model turns
// followed by the current prompt.
func buildContents(prompt string, history []Exchange) []*genai.Content {
	contents := make([]*genai.Content, 0, 2*len(history)+1)
	for _, ex := range history {
		if ex.User != "" {
			contents = append(contents, genai.NewContentFromText(ex.User, genai.RoleUser))
		}
		if ex.Assistant != "" {
			contents = append(contents, genai.NewContentFromText(ex.Assistant, genai.RoleModel))
		}
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
	return contents
}
