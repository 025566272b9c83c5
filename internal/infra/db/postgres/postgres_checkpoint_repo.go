package postgres

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
	"linkedin-autopilot/internal/infra/metrics"
)

var _ repository.CheckpointRepository = (*checkpointRepo)(nil)

// checkpointRepo is the append-only task state log. ULID ids give the log a
// total order without a sequence, so "latest per task" is a max over id.
//
// Schema:
//
//	CREATE TABLE task_checkpoints (
//	  id TEXT PRIMARY KEY,
//	  task_id UUID NOT NULL,
//	  state TEXT NOT NULL,
//	  attempt INT NOT NULL,
//	  last_error TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX task_checkpoints_task_id ON task_checkpoints (task_id, id DESC);
type checkpointRepo struct {
	pool *pgxpool.Pool
}

func NewCheckpointRepo(pool *pgxpool.Pool) *checkpointRepo {
	return &checkpointRepo{pool: pool}
}

const checkpointColumns = `id, task_id, state, attempt, last_error, created_at`

func (r *checkpointRepo) Record(ctx context.Context, tx repository.Tx, cp *model.Checkpoint) error {
	if cp.ID == "" {
		cp.ID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	const q = `
INSERT INTO task_checkpoints (` + checkpointColumns + `)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := execSQL(ctx, r.pool, tx, q,
		cp.ID, cp.TaskID, string(cp.State), cp.Attempt, cp.LastError, cp.CreatedAt)
	if err != nil {
		return err
	}
	metrics.IncCheckpointWrite(string(cp.State))
	return nil
}

func (r *checkpointRepo) LoadLatest(ctx context.Context, taskID string) (*model.Checkpoint, error) {
	const q = `
SELECT ` + checkpointColumns + `
FROM task_checkpoints
WHERE task_id = $1
ORDER BY id DESC
LIMIT 1;`

	row, err := pickRow(ctx, r.pool, nil, q, taskID)
	if err != nil {
		return nil, err
	}
	return scanCheckpoint(row)
}

func (r *checkpointRepo) History(ctx context.Context, taskID string) ([]*model.Checkpoint, error) {
	const q = `
SELECT ` + checkpointColumns + `
FROM task_checkpoints
WHERE task_id = $1
ORDER BY id ASC;`

	rows, err := pickRows(ctx, r.pool, nil, q, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (r *checkpointRepo) LatestNonTerminal(ctx context.Context) ([]*model.Checkpoint, error) {
	const q = `
SELECT DISTINCT ON (task_id) ` + checkpointColumns + `
FROM task_checkpoints
ORDER BY task_id, id DESC;`

	rows, err := pickRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		if !cp.State.Terminal() {
			out = append(out, cp)
		}
	}
	return out, rows.Err()
}

func scanCheckpoint(row pgx.Row) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	var state string
	err := row.Scan(&cp.ID, &cp.TaskID, &state, &cp.Attempt, &cp.LastError, &cp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	cp.State = model.TaskState(state)
	return &cp, nil
}
