package model

import "time"

type RecordKind string

const (
	RecordScrapedProfile     RecordKind = "scraped_profile"
	RecordScrapedJob         RecordKind = "scraped_job"
	RecordGeneratedContent   RecordKind = "generated_content"
	RecordApplicationOutcome RecordKind = "application_outcome"
)

// OutcomeRecord is what a completed task emits to the external data sink:
// scraped fields, generated text, or a submission confirmation, keyed by
// identity and timestamp.
type OutcomeRecord struct {
	ID        string // ULID
	TaskID    string
	Identity  string
	Kind      RecordKind
	Fields    map[string]string
	CreatedAt time.Time
}
