package repository

import (
	"context"
	"time"

	"linkedin-autopilot/internal/domain/model"
)

// RateStore is the governor's serialized budget state. Implementations own
// the single-writer discipline per action kind.
type RateStore interface {
	// TakeToken consumes one unit of budget if available. When it cannot, it
	// returns ok=false and the duration after which the caller should try
	// again (cooldown remainder or window rollover).
	TakeToken(ctx context.Context, kind model.ActionKind, limit int, window time.Duration) (ok bool, retryIn time.Duration, err error)

	// SetCooldown blocks the kind until now+cooldown and zeroes any budget
	// remaining in the current window.
	SetCooldown(ctx context.Context, kind model.ActionKind, cooldown time.Duration) error

	// Budget returns the current window snapshot for observability.
	Budget(ctx context.Context, kind model.ActionKind) (model.RateBudget, error)
}
