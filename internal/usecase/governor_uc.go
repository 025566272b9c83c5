// File: internal/usecase/governor_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/config"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
	"linkedin-autopilot/internal/infra/metrics"
)

// RateGovernor throttles every externally observable action. Admit suspends
// the caller until budget exists; it never silently drops work.
type RateGovernor interface {
	Admit(ctx context.Context, kind model.ActionKind) error
	Penalize(ctx context.Context, kind model.ActionKind, cooldown time.Duration) error
	Budget(ctx context.Context, kind model.ActionKind) (model.RateBudget, error)

	// Backoff returns the cooldown to impose before the given retry attempt.
	Backoff(attempt int) time.Duration
}

var _ RateGovernor = (*governorUC)(nil)

type governorUC struct {
	store       repository.RateStore
	limits      map[model.ActionKind]config.RateLimitConfig
	backoffBase time.Duration
	log         *zerolog.Logger
}

func NewRateGovernor(store repository.RateStore, limits map[string]config.RateLimitConfig, backoffBase time.Duration, logger *zerolog.Logger) *governorUC {
	gLog := logger.With().Str("component", "RateGovernor").Logger()
	byKind := make(map[model.ActionKind]config.RateLimitConfig, len(limits))
	for k, v := range limits {
		byKind[model.ActionKind(k)] = v
	}
	if backoffBase <= 0 {
		backoffBase = 30 * time.Second
	}
	return &governorUC{store: store, limits: byKind, backoffBase: backoffBase, log: &gLog}
}

func (g *governorUC) Admit(ctx context.Context, kind model.ActionKind) error {
	limit := g.limits[kind]
	if limit.Limit <= 0 {
		// Unconfigured kinds pass through unthrottled.
		return nil
	}

	start := time.Now()
	for {
		ok, retryIn, err := g.store.TakeToken(ctx, kind, limit.Limit, limit.Window)
		if err != nil {
			return err
		}
		if ok {
			waited := time.Since(start)
			metrics.ObserveRateWait(string(kind), float64(waited.Milliseconds()))
			if waited > time.Second {
				g.log.Info().Str("kind", string(kind)).Dur("waited", waited).Msg("admitted after wait")
			}
			return nil
		}
		if retryIn <= 0 {
			retryIn = time.Second
		}
		g.log.Debug().Str("kind", string(kind)).Dur("wait", retryIn).Msg("budget exhausted, suspending")

		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *governorUC) Penalize(ctx context.Context, kind model.ActionKind, cooldown time.Duration) error {
	if cooldown <= 0 {
		return nil
	}
	if err := g.store.SetCooldown(ctx, kind, cooldown); err != nil {
		return err
	}
	metrics.IncRatePenalty(string(kind))
	g.log.Warn().Str("kind", string(kind)).Dur("cooldown", cooldown).Msg("penalized")
	return nil
}

func (g *governorUC) Budget(ctx context.Context, kind model.ActionKind) (model.RateBudget, error) {
	b, err := g.store.Budget(ctx, kind)
	if err != nil {
		return b, err
	}
	b.Limit = g.limits[kind].Limit
	return b, nil
}

// Backoff doubles per attempt: base, 2x, 4x... capped at one hour.
func (g *governorUC) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := g.backoffBase << uint(attempt-1)
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
