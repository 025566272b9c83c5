package model

import "time"

type SessionHealth string

const (
	SessionFresh   SessionHealth = "fresh"
	SessionStale   SessionHealth = "stale"
	SessionExpired SessionHealth = "expired"
	SessionBlocked SessionHealth = "blocked"
)

// Session is an authenticated browser context for one account. The session
// manager owns it; tasks borrow a handle for the duration of one browser
// interaction and must return it via Release.
type Session struct {
	AccountID  string
	Cookies    []Cookie
	CreatedAt  time.Time
	LastUsedAt time.Time
	Health     SessionHealth
}

type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
}

// HealthAt derives the session's health from its age, leaving Blocked sticky.
// Sessions older than threshold are Stale; older than 2x threshold, Expired.
func (s *Session) HealthAt(now time.Time, threshold time.Duration) SessionHealth {
	if s.Health == SessionBlocked {
		return SessionBlocked
	}
	age := now.Sub(s.CreatedAt)
	switch {
	case age >= 2*threshold:
		return SessionExpired
	case age >= threshold:
		return SessionStale
	default:
		return SessionFresh
	}
}
