package model

import "time"

// RateBudget is the governor's view of one action kind's window: how many
// actions were admitted since WindowStart, the configured Limit, and an
// optional cooldown that overrides the window entirely.
type RateBudget struct {
	Kind          ActionKind
	WindowStart   time.Time
	Count         int
	Limit         int
	CooldownUntil time.Time
}

// Exhausted reports whether no budget remains at the given instant.
func (b RateBudget) Exhausted(now time.Time) bool {
	if now.Before(b.CooldownUntil) {
		return true
	}
	return b.Count >= b.Limit
}
