package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Queue errors
	ErrDuplicateTask      = errors.New("active task already exists for identity and kind")
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
	ErrInvalidTransition  = errors.New("invalid task state transition")

	// Session errors
	ErrAuthenticationFailed = errors.New("re-authentication failed")
	ErrAccountBlocked       = errors.New("account blocked by platform")
	ErrAccountBusy          = errors.New("account session held by another process")
	ErrSessionBlocked       = errors.New("session is blocked and must be reset")

	// Browser driver errors
	ErrElementNotFound     = errors.New("element not found")
	ErrNavigationTimeout   = errors.New("navigation timed out")
	ErrDetectionChallenge  = errors.New("platform presented a detection challenge")
	ErrTargetGone          = errors.New("target resource no longer exists")
	ErrLayoutChanged       = errors.New("page layout does not match expected structure")
	ErrSubmissionUnaligned = errors.New("submission confirmation could not be verified")

	// Content generation errors
	ErrContentGeneration = errors.New("content generation failed")
	ErrContentTooShort   = errors.New("generated content below minimum length")

	// Infra errors
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
