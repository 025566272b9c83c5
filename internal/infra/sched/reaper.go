// File: internal/infra/sched/reaper.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/usecase"
)

// Reaper recovers tasks abandoned by a dead worker and hands them back to
// the engine through the resume hook.
type Reaper struct {
	interval   time.Duration
	staleAfter time.Duration
	recovery   *usecase.Recovery
	resume     func(tasks []*model.Task)
	log        *zerolog.Logger
}

func NewReaper(interval, staleAfter time.Duration, recovery *usecase.Recovery, resume func(tasks []*model.Task), logger *zerolog.Logger) *Reaper {
	rLog := logger.With().Str("component", "Reaper").Logger()
	return &Reaper{
		interval:   interval,
		staleAfter: staleAfter,
		recovery:   recovery,
		resume:     resume,
		log:        &rLog,
	}
}

func (w *Reaper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reaper")
			return ctx.Err()
		case <-ticker.C:
			tasks, err := w.recovery.ReapStale(ctx, w.staleAfter)
			if err != nil {
				w.log.Error().Err(err).Msg("reap failed")
				continue
			}
			if len(tasks) > 0 {
				w.log.Info().Int("count", len(tasks)).Msg("stale tasks recovered")
				w.resume(tasks)
			}
		}
	}
}
