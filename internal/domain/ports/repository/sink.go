package repository

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
)

// RecordSink receives scraped data and application outcomes for external
// storage and reporting. Destination and format are configuration-owned.
type RecordSink interface {
	Emit(ctx context.Context, tx Tx, record *model.OutcomeRecord) error
	FindByIdentity(ctx context.Context, identity string, limit int) ([]*model.OutcomeRecord, error)
}
