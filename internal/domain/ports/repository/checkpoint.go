package repository

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
)

// CheckpointRepository is the append-only task state log. Record must be
// durable before it returns; the append path is safe under concurrent
// writers for distinct task ids.
type CheckpointRepository interface {
	Record(ctx context.Context, tx Tx, cp *model.Checkpoint) error

	// LoadLatest returns the newest checkpoint for the task, or
	// domain.ErrNotFound if the task never started.
	LoadLatest(ctx context.Context, taskID string) (*model.Checkpoint, error)

	// History returns all checkpoints for the task, oldest first.
	History(ctx context.Context, taskID string) ([]*model.Checkpoint, error)

	// LatestNonTerminal returns, for every task whose newest checkpoint is a
	// non-terminal state, that newest checkpoint. Used by startup recovery.
	LatestNonTerminal(ctx context.Context) ([]*model.Checkpoint, error)
}
