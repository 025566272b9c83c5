package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.BrowserDriver = (*SimDriver)(nil)

// SimDriver is a scripted in-memory driver used for dry runs and tests. Pages
// are keyed by URL; every mutating call is recorded so callers can assert on
// what "happened" to the platform.
type SimDriver struct {
	mu      sync.Mutex
	pages   map[string]map[string]string // url -> extracted data
	current string

	// Error injection, consumed one call at a time.
	NavigateErrs []error
	ExtractErrs  []error
	SubmitErrs   []error
	AuthErr      error

	Submissions []SubmittedForm
}

type SubmittedForm struct {
	URL    string
	Fields []adapter.FormField
}

func NewSimDriver() *SimDriver {
	return &SimDriver{pages: make(map[string]map[string]string)}
}

// AddPage registers the data Extract will find at url.
func (s *SimDriver) AddPage(url string, data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = data
}

// RemovePage simulates the target disappearing (posting withdrawn).
func (s *SimDriver) RemovePage(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, url)
}

func (s *SimDriver) popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (s *SimDriver) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popErr(&s.NavigateErrs); err != nil {
		return err
	}
	s.current = url
	return nil
}

func (s *SimDriver) Extract(ctx context.Context, specs []adapter.SelectorSpec) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popErr(&s.ExtractErrs); err != nil {
		return nil, err
	}
	page, ok := s.pages[s.current]
	if !ok {
		return nil, domain.ErrTargetGone
	}
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		v, ok := page[spec.Name]
		if !ok && !spec.Optional {
			return nil, fmt.Errorf("%w: %s", domain.ErrElementNotFound, spec.Selector)
		}
		out[spec.Name] = v
	}
	return out, nil
}

func (s *SimDriver) SubmitForm(ctx context.Context, fields []adapter.FormField) (adapter.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popErr(&s.SubmitErrs); err != nil {
		return adapter.Confirmation{}, err
	}
	if _, ok := s.pages[s.current]; !ok {
		return adapter.Confirmation{}, domain.ErrTargetGone
	}
	s.Submissions = append(s.Submissions, SubmittedForm{URL: s.current, Fields: fields})
	// Leave a marker the verification step can find.
	s.pages[s.current]["applied"] = "true"
	return adapter.Confirmation{Reference: fmt.Sprintf("sim-%d", len(s.Submissions)), Message: "Application sent"}, nil
}

func (s *SimDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("sim-screenshot"), nil
}

func (s *SimDriver) Authenticate(ctx context.Context, accountID string) ([]model.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AuthErr != nil {
		return nil, s.AuthErr
	}
	return []model.Cookie{{
		Name:    "li_at",
		Value:   "sim-" + accountID,
		Domain:  ".linkedin.com",
		Path:    "/",
		Expires: time.Now().Add(365 * 24 * time.Hour),
	}}, nil
}

func (s *SimDriver) RestoreCookies(ctx context.Context, cookies []model.Cookie) error {
	return nil
}

// SubmissionCount is a race-safe accessor for tests.
func (s *SimDriver) SubmissionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Submissions)
}
