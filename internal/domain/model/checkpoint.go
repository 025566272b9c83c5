package model

import "time"

// Checkpoint is one durable entry in a task's append-only state log. The
// newest entry per task id is authoritative after a restart.
type Checkpoint struct {
	ID        string // ULID, lexicographically ordered by creation
	TaskID    string
	State     TaskState
	Attempt   int
	LastError string
	CreatedAt time.Time
}
