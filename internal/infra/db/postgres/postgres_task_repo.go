package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

// taskRepo backs the task queue. Dedup of active identity+kind pairs is a
// partial unique index; claims use FOR UPDATE SKIP LOCKED so concurrent
// workers never double-claim.
//
// Schema:
//
//	CREATE TABLE tasks (
//	  id UUID PRIMARY KEY,
//	  identity TEXT NOT NULL,
//	  kind TEXT NOT NULL,
//	  priority INT NOT NULL DEFAULT 0,
//	  state TEXT NOT NULL,
//	  attempts INT NOT NULL DEFAULT 0,
//	  payload JSONB NOT NULL DEFAULT '{}',
//	  requires_verification BOOLEAN NOT NULL DEFAULT FALSE,
//	  last_error TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX tasks_active_identity_kind ON tasks (identity, kind)
//	  WHERE state NOT IN ('completed', 'failed', 'skipped');
type taskRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewTaskRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *taskRepo {
	return &taskRepo{pool: pool, tm: tm}
}

const taskColumns = `id, identity, kind, priority, state, attempts, payload, requires_verification, last_error, created_at, updated_at`

func (r *taskRepo) Insert(ctx context.Context, tx repository.Tx, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.State == "" {
		task.State = model.TaskPending
	}

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO tasks (` + taskColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	_, err = execSQL(ctx, r.pool, tx, q,
		task.ID, task.Identity, string(task.Kind), task.Priority, string(task.State),
		task.Attempts, payload, task.RequiresVerification, task.LastError,
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateTask
		}
		return err
	}
	return nil
}

func (r *taskRepo) Save(ctx context.Context, tx repository.Tx, task *model.Task) error {
	task.UpdatedAt = time.Now()
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}

	const q = `
UPDATE tasks SET
  priority = $2,
  state = $3,
  attempts = $4,
  payload = $5,
  requires_verification = $6,
  last_error = $7,
  updated_at = $8
WHERE id = $1;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		task.ID, task.Priority, string(task.State), task.Attempts, payload,
		task.RequiresVerification, task.LastError, task.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimNext picks the highest-priority Pending task whose identity has no
// in-flight task, and flips it to InProgress inside one transaction.
func (r *taskRepo) ClaimNext(ctx context.Context) (*model.Task, error) {
	var task *model.Task

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + taskColumns + `
FROM tasks t
WHERE t.state = 'pending'
  AND NOT EXISTS (
    SELECT 1 FROM tasks o
    WHERE o.identity = t.identity
      AND o.state IN ('in_progress', 'awaiting_content', 'submitting')
  )
ORDER BY t.priority DESC, t.created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanTask(row)
		if err != nil {
			return err
		}

		// The row lock only covers the selected row. Serialize claims on
		// the identity and re-check, or two claimers racing on sibling
		// tasks could each put one in flight.
		if _, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock(hashtext($1));`, fetched.Identity); err != nil {
			return err
		}
		const recheckQuery = `
SELECT EXISTS (
  SELECT 1 FROM tasks
  WHERE identity = $1
    AND state IN ('in_progress', 'awaiting_content', 'submitting')
);`
		recheck, err := pickRow(ctx, r.pool, tx, recheckQuery, fetched.Identity)
		if err != nil {
			return err
		}
		var inFlight bool
		if err := recheck.Scan(&inFlight); err != nil {
			return domain.ErrReadDatabaseRow
		}
		if inFlight {
			return domain.ErrNotFound
		}

		fetched.State = model.TaskInProgress
		fetched.Attempts++ // each claim is one execution attempt
		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		task = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTask(row)
}

func (r *taskRepo) FindByState(ctx context.Context, tx repository.Tx, state model.TaskState) ([]*model.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE state = $1 ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, tx, q, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SkipAllForIdentity flips every non-terminal task of the identity to
// Skipped and returns each affected task with its pre-skip state, so the
// caller can extend the checkpoint trails inside the same transaction.
func (r *taskRepo) SkipAllForIdentity(ctx context.Context, tx repository.Tx, identity, reason string) ([]*model.Task, error) {
	const q = `
WITH affected AS (
  SELECT id, state AS prior_state
  FROM tasks
  WHERE identity = $1 AND state NOT IN ('completed', 'failed', 'skipped')
  FOR UPDATE
)
UPDATE tasks t
SET state = 'skipped', last_error = $2, updated_at = $3
FROM affected a
WHERE t.id = a.id
RETURNING t.id, t.identity, t.kind, t.priority, a.prior_state, t.attempts,
  t.payload, t.requires_verification, t.last_error, t.created_at, t.updated_at;`

	rows, err := pickRows(ctx, r.pool, tx, q, identity, reason, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *taskRepo) CountByState(ctx context.Context) (map[model.TaskState]int, error) {
	const q = `SELECT state, COUNT(*) FROM tasks GROUP BY state;`
	rows, err := pickRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.TaskState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.TaskState(state)] = n
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var kind, state string
	var payload []byte
	err := row.Scan(
		&t.ID, &t.Identity, &kind, &t.Priority, &state, &t.Attempts,
		&payload, &t.RequiresVerification, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	t.Kind = model.ActionKind(kind)
	t.State = model.TaskState(state)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &t, nil
}
