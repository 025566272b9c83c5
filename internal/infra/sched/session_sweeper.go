// File: internal/infra/sched/session_sweeper.go
package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/usecase"
)

// SessionSweeper periodically refreshes each account's session so cookies
// never cross the freshness threshold in the middle of a task.
type SessionSweeper struct {
	interval time.Duration
	accounts []string
	sessions usecase.SessionManager
	log      *zerolog.Logger
}

func NewSessionSweeper(interval time.Duration, accounts []string, sessions usecase.SessionManager, logger *zerolog.Logger) *SessionSweeper {
	swLog := logger.With().Str("component", "SessionSweeper").Logger()
	return &SessionSweeper{
		interval: interval,
		accounts: accounts,
		sessions: sessions,
		log:      &swLog,
	}
}

func (w *SessionSweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting session sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionSweeper) sweep(ctx context.Context) {
	for _, account := range w.accounts {
		// Bound the wait: if a task holds the session the sweep yields
		// instead of queueing behind it.
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := w.sessions.Refresh(refreshCtx, account)
		cancel()
		if err != nil && errors.Is(refreshCtx.Err(), context.DeadlineExceeded) {
			w.log.Debug().Str("account", account).Msg("session busy, skipping refresh")
			continue
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAccountBlocked):
			// Stays blocked until an operator resets it; no point retrying.
			w.log.Warn().Str("account", account).Msg("skipping blocked account")
		case errors.Is(err, domain.ErrAccountBusy):
			// A task holds the session; its own activity keeps it fresh.
			w.log.Debug().Str("account", account).Msg("session in use, skipping refresh")
		default:
			w.log.Error().Err(err).Str("account", account).Msg("session refresh failed")
		}
	}
}
