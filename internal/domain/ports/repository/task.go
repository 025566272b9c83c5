package repository

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
)

// TaskRepository is the durable backing of the task queue.
type TaskRepository interface {
	// Insert stores a new Pending task. Returns domain.ErrDuplicateTask when
	// a non-terminal task already exists for the same identity+kind.
	Insert(ctx context.Context, tx Tx, task *model.Task) error

	// Save upserts the task's mutable state.
	Save(ctx context.Context, tx Tx, task *model.Task) error

	// ClaimNext atomically selects the highest-priority Pending task whose
	// identity has no other InProgress work, marks it InProgress and returns
	// it. domain.ErrNotFound when nothing is ready.
	ClaimNext(ctx context.Context) (*model.Task, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.Task, error)

	// FindByState lists tasks currently in the given state.
	FindByState(ctx context.Context, tx Tx, state model.TaskState) ([]*model.Task, error)

	// SkipAllForIdentity marks every non-terminal task of the identity as
	// Skipped with the given reason. Used when the target disappears: no
	// sibling task for a removed posting or profile can succeed either.
	// The returned tasks carry the state each one had before the skip, so
	// the caller can append matching checkpoints in the same transaction.
	SkipAllForIdentity(ctx context.Context, tx Tx, identity, reason string) ([]*model.Task, error)

	// CountByState returns a state→count snapshot for the ops API.
	CountByState(ctx context.Context) (map[model.TaskState]int, error)
}
