package model

import "time"

// ActionKind identifies what a task does against the platform.
type ActionKind string

const (
	ActionScrapeProfile   ActionKind = "scrape_profile"
	ActionScrapeJob       ActionKind = "scrape_job"
	ActionGenerateContent ActionKind = "generate_content"
	ActionApplyToJob      ActionKind = "apply_to_job"
)

// AllActionKinds is the stable iteration order used by config and metrics.
var AllActionKinds = []ActionKind{
	ActionScrapeProfile,
	ActionScrapeJob,
	ActionGenerateContent,
	ActionApplyToJob,
}

func (k ActionKind) Valid() bool {
	switch k {
	case ActionScrapeProfile, ActionScrapeJob, ActionGenerateContent, ActionApplyToJob:
		return true
	}
	return false
}

// NeedsContent reports whether the workflow must generate AI text before submitting.
func (k ActionKind) NeedsContent() bool { return k == ActionApplyToJob }

type TaskState string

const (
	TaskPending         TaskState = "pending"
	TaskInProgress      TaskState = "in_progress"
	TaskAwaitingContent TaskState = "awaiting_content"
	TaskSubmitting      TaskState = "submitting"
	TaskCompleted       TaskState = "completed"
	TaskFailed          TaskState = "failed"
	TaskSkipped         TaskState = "skipped"
)

func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step of the
// workflow. Failed→Pending is the explicit retry edge; everything else is
// strictly forward.
func (s TaskState) CanTransition(next TaskState) bool {
	if s.Terminal() {
		return s == TaskFailed && next == TaskPending
	}
	switch s {
	case TaskPending:
		return next == TaskInProgress
	case TaskInProgress:
		return next == TaskAwaitingContent || next == TaskSubmitting ||
			next == TaskFailed || next == TaskSkipped
	case TaskAwaitingContent:
		return next == TaskSubmitting || next == TaskFailed || next == TaskSkipped
	case TaskSubmitting:
		return next == TaskCompleted || next == TaskFailed || next == TaskSkipped
	}
	return false
}

// Task is one unit of automation work against a single platform identity.
// The queue owns it until a worker claims it; the claiming worker owns its
// mutable state until the task reaches a terminal state.
type Task struct {
	ID       string
	Identity string
	Kind     ActionKind
	Priority int
	State    TaskState
	Attempts int

	// Payload carries kind-specific input: target URL for scrapes, the job
	// description and role for applications.
	Payload TaskPayload

	// RequiresVerification is set when the task was recovered from a
	// Submitting checkpoint: the worker must confirm via the browser whether
	// the submission already happened before submitting again.
	RequiresVerification bool

	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskPayload is the per-kind variant data. Only the fields relevant to the
// task's kind are populated.
type TaskPayload struct {
	TargetURL      string `json:"target_url,omitempty"`
	Role           string `json:"role,omitempty"`
	ProfileSummary string `json:"profile_summary,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
}

// Retryable reports whether the task may be requeued given the attempt cap.
// Only Failed tasks have the retry edge.
func (t *Task) Retryable(maxAttempts int) bool {
	return t.State == TaskFailed && t.Attempts < maxAttempts
}
