package repository

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
)

// SessionStore persists authenticated sessions so restarts can reuse a live
// cookie set instead of re-authenticating.
type SessionStore interface {
	Load(ctx context.Context, accountID string) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, accountID string) error
}
