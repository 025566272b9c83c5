package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.ContentGenerator = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client *genai.Client
	model  string
	maxOut int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if maxOut <= 0 {
		maxOut = 1024
	}
	return &GeminiAdapter{client: c, model: model, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	models := g.client.Models.All(ctx)
	var out []string
	for m := range models {
		if m.Name != "" {
			out = append(out, m.Name)
		}
	}
	if len(out) == 0 && g.model != "" {
		out = []string{g.model}
	}
	return out, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, req adapter.ContentRequest) (int, error) {
	resp, err := g.client.Models.CountTokens(ctx, g.model, g.contents(req), nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Generate(ctx context.Context, req adapter.ContentRequest) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, g.contents(req),
		&genai.GenerateContentConfig{MaxOutputTokens: int32(g.maxOut)})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func (g *GeminiAdapter) contents(req adapter.ContentRequest) []*genai.Content {
	// Gemini has no separate system role in history; fold the instruction
	// into the user content.
	system, user := buildPrompt(req)
	return []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: system + "\n\n" + user}},
	}}
}
