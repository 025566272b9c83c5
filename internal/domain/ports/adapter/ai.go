package adapter

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
)

// ContentRequest carries everything the external generator needs to produce
// text for one task.
type ContentRequest struct {
	Kind           model.ActionKind
	Role           string
	ProfileSummary string
	JobDescription string
}

// ContentGenerator is the port for the external AI text producer. Generate
// returns the raw text; validation and timeouts are the caller's concern.
type ContentGenerator interface {
	// ListModels enumerates models the provider can serve.
	ListModels(ctx context.Context) ([]string, error)

	// CountTokens estimates prompt tokens for budgeting (best-effort when the
	// provider has no exact counter).
	CountTokens(ctx context.Context, req ContentRequest) (int, error)

	Generate(ctx context.Context, req ContentRequest) (string, error)
}
