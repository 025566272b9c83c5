package ai

import (
	"context"
	"fmt"
	"time"

	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.ContentGenerator = (*NoopGenerator)(nil)

// NoopGenerator implements adapter.ContentGenerator for local/dev runs.
// It produces deterministic placeholder text instead of calling a provider.
type NoopGenerator struct{}

func NewNoopGenerator() *NoopGenerator { return &NoopGenerator{} }

func (n *NoopGenerator) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop"}, nil
}

func (n *NoopGenerator) CountTokens(ctx context.Context, req adapter.ContentRequest) (int, error) {
	_, user := buildPrompt(req)
	// Rough heuristic: one token per four characters.
	return len(user) / 4, nil
}

func (n *NoopGenerator) Generate(ctx context.Context, req adapter.ContentRequest) (string, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return fmt.Sprintf(
		"Dear Hiring Team,\n\nI am writing to express my interest in the %s role. "+
			"My background matches the position's requirements and I would welcome the chance to contribute.\n\nBest regards",
		req.Role), nil
}
