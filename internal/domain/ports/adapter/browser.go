package adapter

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
)

// SelectorSpec tells the driver what to pull off the current page.
type SelectorSpec struct {
	// Name maps to a key in the extracted data.
	Name string
	// Selector is a CSS selector.
	Selector string
	// Optional selectors yield empty values instead of ErrElementNotFound.
	Optional bool
}

// FormField is one input of a form submission.
type FormField struct {
	Selector string
	Value    string
}

// Confirmation is what the platform returned after a form submission.
type Confirmation struct {
	Reference string
	Message   string
}

// BrowserDriver is the capability interface over the concrete browser
// automation engine. Calls may fail with domain.ErrElementNotFound,
// domain.ErrNavigationTimeout or domain.ErrDetectionChallenge; the last one
// must be propagated to the rate governor.
type BrowserDriver interface {
	Navigate(ctx context.Context, url string) error
	Extract(ctx context.Context, specs []SelectorSpec) (map[string]string, error)
	SubmitForm(ctx context.Context, fields []FormField) (Confirmation, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// Authenticate performs the login sequence for the account and returns
	// the resulting cookie set. Blocked accounts surface domain.ErrAccountBlocked.
	Authenticate(ctx context.Context, accountID string) ([]model.Cookie, error)

	// RestoreCookies primes the browser context with a persisted cookie set.
	RestoreCookies(ctx context.Context, cookies []model.Cookie) error
}
