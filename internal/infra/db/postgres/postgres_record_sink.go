package postgres

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
)

var _ repository.RecordSink = (*recordSink)(nil)

// recordSink stores emitted outcome records for the external reporting
// pipeline to pick up.
//
// Schema:
//
//	CREATE TABLE outcome_records (
//	  id TEXT PRIMARY KEY,
//	  task_id UUID NOT NULL,
//	  identity TEXT NOT NULL,
//	  kind TEXT NOT NULL,
//	  fields JSONB NOT NULL DEFAULT '{}',
//	  created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX outcome_records_identity ON outcome_records (identity, created_at DESC);
type recordSink struct {
	pool *pgxpool.Pool
}

func NewRecordSink(pool *pgxpool.Pool) *recordSink {
	return &recordSink{pool: pool}
}

func (r *recordSink) Emit(ctx context.Context, tx repository.Tx, record *model.OutcomeRecord) error {
	if record.ID == "" {
		record.ID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO outcome_records (id, task_id, identity, kind, fields, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err = execSQL(ctx, r.pool, tx, q,
		record.ID, record.TaskID, record.Identity, string(record.Kind), fields, record.CreatedAt)
	return err
}

func (r *recordSink) FindByIdentity(ctx context.Context, identity string, limit int) ([]*model.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, task_id, identity, kind, fields, created_at
FROM outcome_records
WHERE identity = $1
ORDER BY created_at DESC
LIMIT $2;`

	rows, err := pickRows(ctx, r.pool, nil, q, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OutcomeRecord
	for rows.Next() {
		var rec model.OutcomeRecord
		var kind string
		var fields []byte
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Identity, &kind, &fields, &rec.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		rec.Kind = model.RecordKind(kind)
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &rec.Fields); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
