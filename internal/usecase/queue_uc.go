// File: internal/usecase/queue_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
	"linkedin-autopilot/internal/infra/metrics"
)

// TaskQueue is the ordered, deduplicated work feed for the workflow engine.
type TaskQueue interface {
	// Enqueue adds a Pending task. Fails with domain.ErrDuplicateTask when an
	// active task already exists for the same identity+kind.
	Enqueue(ctx context.Context, task *model.Task) error

	// DequeueNext claims the highest-priority ready task, or returns
	// domain.ErrNotFound immediately. Never blocks.
	DequeueNext(ctx context.Context) (*model.Task, error)

	// RequeueForRetry moves a failed-but-retryable task back to Pending. At
	// the attempt cap (attempts are counted at claim time) it leaves the
	// task terminal Failed and returns domain.ErrRetryLimitExceeded.
	RequeueForRetry(ctx context.Context, task *model.Task) error

	// Ready pulses when work may be available, so idle workers can wake
	// without polling tightly.
	Ready() <-chan struct{}

	Stats(ctx context.Context) (map[model.TaskState]int, error)
	Find(ctx context.Context, id string) (*model.Task, error)
}

var _ TaskQueue = (*queueUC)(nil)

type queueUC struct {
	repo        repository.TaskRepository
	checkpoints repository.CheckpointRepository
	maxAttempts int
	ready       chan struct{}
	log         *zerolog.Logger
}

func NewTaskQueue(repo repository.TaskRepository, checkpoints repository.CheckpointRepository, maxAttempts int, logger *zerolog.Logger) *queueUC {
	qLog := logger.With().Str("component", "TaskQueue").Logger()
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &queueUC{
		repo:        repo,
		checkpoints: checkpoints,
		maxAttempts: maxAttempts,
		ready:       make(chan struct{}, 1),
		log:         &qLog,
	}
}

func (q *queueUC) Enqueue(ctx context.Context, task *model.Task) error {
	if task.Identity == "" || !task.Kind.Valid() {
		return domain.ErrInvalidArgument
	}
	task.State = model.TaskPending
	if err := q.repo.Insert(ctx, nil, task); err != nil {
		if errors.Is(err, domain.ErrDuplicateTask) {
			q.log.Debug().Str("identity", task.Identity).Str("kind", string(task.Kind)).Msg("duplicate task rejected")
		}
		return err
	}
	q.log.Info().Str("task_id", task.ID).Str("identity", task.Identity).
		Str("kind", string(task.Kind)).Int("priority", task.Priority).Msg("task enqueued")
	q.signal()
	return nil
}

func (q *queueUC) DequeueNext(ctx context.Context) (*model.Task, error) {
	task, err := q.repo.ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	// The claim is itself a transition; it must be on the checkpoint log
	// before any work happens. If the write fails the claim stands in the
	// task table and the reaper will return it to the queue.
	if err := q.checkpoints.Record(ctx, nil, &model.Checkpoint{
		TaskID:  task.ID,
		State:   model.TaskInProgress,
		Attempt: task.Attempts,
	}); err != nil {
		return nil, err
	}
	return task, nil
}

func (q *queueUC) RequeueForRetry(ctx context.Context, task *model.Task) error {
	if !task.Retryable(q.maxAttempts) {
		// Terminal Failed: the failure checkpoint is already on record.
		task.State = model.TaskFailed
		if err := q.repo.Save(ctx, nil, task); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s after %d attempts", domain.ErrRetryLimitExceeded, task.ID, task.Attempts)
	}

	task.State = model.TaskPending
	if err := q.repo.Save(ctx, nil, task); err != nil {
		return err
	}
	if err := q.checkpoints.Record(ctx, nil, &model.Checkpoint{
		TaskID:    task.ID,
		State:     model.TaskPending,
		Attempt:   task.Attempts,
		LastError: task.LastError,
	}); err != nil {
		return err
	}
	metrics.IncTaskRetry(string(task.Kind))
	q.log.Info().Str("task_id", task.ID).Int("attempt", task.Attempts).Msg("task requeued for retry")
	q.signal()
	return nil
}

func (q *queueUC) Ready() <-chan struct{} { return q.ready }

func (q *queueUC) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queueUC) Stats(ctx context.Context) (map[model.TaskState]int, error) {
	return q.repo.CountByState(ctx)
}

func (q *queueUC) Find(ctx context.Context, id string) (*model.Task, error) {
	return q.repo.FindByID(ctx, nil, id)
}
