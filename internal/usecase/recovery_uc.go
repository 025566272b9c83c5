// File: internal/usecase/recovery_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
)

// Recovery reconciles the task queue with the checkpoint log after a restart.
// Tasks checkpointed in a non-terminal state resume from that state instead
// of restarting at Pending. Submitting is the exception: the submission may
// or may not have reached the platform, so those tasks drop back to
// InProgress with a verification flag that forces a browser-side re-check
// before any second submit.
type Recovery struct {
	tasks       repository.TaskRepository
	checkpoints repository.CheckpointRepository
	log         *zerolog.Logger
}

func NewRecovery(tasks repository.TaskRepository, checkpoints repository.CheckpointRepository, logger *zerolog.Logger) *Recovery {
	rLog := logger.With().Str("component", "Recovery").Logger()
	return &Recovery{tasks: tasks, checkpoints: checkpoints, log: &rLog}
}

// Reconcile runs once at startup, before any worker claims tasks, and
// returns the tasks the engine must resume directly.
func (r *Recovery) Reconcile(ctx context.Context) ([]*model.Task, error) {
	cps, err := r.checkpoints.LatestNonTerminal(ctx)
	if err != nil {
		return nil, err
	}

	var resumed []*model.Task
	for _, cp := range cps {
		task, err := r.tasks.FindByID(ctx, nil, cp.TaskID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.log.Warn().Str("task_id", cp.TaskID).Msg("checkpoint without task row")
				continue
			}
			return nil, err
		}
		if task.State.Terminal() || task.State == model.TaskPending {
			// Terminal tasks finished after their last non-terminal
			// checkpoint was written; Pending ones re-enter via the queue.
			continue
		}

		if cp.State == model.TaskSubmitting {
			task.State = model.TaskInProgress
			task.RequiresVerification = true
			if err := r.tasks.Save(ctx, nil, task); err != nil {
				return nil, err
			}
			// Resume edge Submitting→InProgress is recorded here; it is the
			// one sanctioned backward step in the checkpoint log.
			if err := r.checkpoints.Record(ctx, nil, &model.Checkpoint{
				TaskID:    task.ID,
				State:     model.TaskInProgress,
				Attempt:   task.Attempts,
				LastError: "resumed after interrupted submission",
			}); err != nil {
				return nil, err
			}
		}

		r.log.Info().Str("task_id", task.ID).Str("state", string(task.State)).
			Bool("verify", task.RequiresVerification).Msg("task resumed from checkpoint")
		resumed = append(resumed, task)
	}
	return resumed, nil
}

// ReapStale recovers tasks orphaned by a dead worker in another process:
// non-terminal, claimed, and untouched for longer than staleAfter. The live
// engine touches the task row on every transition, so fresh rows are skipped.
func (r *Recovery) ReapStale(ctx context.Context, staleAfter time.Duration) ([]*model.Task, error) {
	var resumed []*model.Task
	cutoff := time.Now().Add(-staleAfter)

	for _, state := range []model.TaskState{model.TaskInProgress, model.TaskAwaitingContent, model.TaskSubmitting} {
		tasks, err := r.tasks.FindByState(ctx, nil, state)
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if task.UpdatedAt.After(cutoff) {
				continue
			}
			if state == model.TaskSubmitting {
				// Same backward edge as Reconcile: the submission may have
				// landed, so drop to InProgress and force a re-check. Every
				// other state resumes where its checkpoint left it.
				task.State = model.TaskInProgress
				task.RequiresVerification = true
				if err := r.tasks.Save(ctx, nil, task); err != nil {
					return nil, err
				}
				if err := r.checkpoints.Record(ctx, nil, &model.Checkpoint{
					TaskID:    task.ID,
					State:     model.TaskInProgress,
					Attempt:   task.Attempts,
					LastError: "resumed after interrupted submission",
				}); err != nil {
					return nil, err
				}
			} else if err := r.tasks.Save(ctx, nil, task); err != nil {
				return nil, err
			}
			r.log.Warn().Str("task_id", task.ID).Str("state", string(task.State)).Msg("stale claim reaped")
			resumed = append(resumed, task)
		}
	}
	return resumed, nil
}
