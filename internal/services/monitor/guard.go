package monitor

import (
	"sync"
	"time"
)

// DefaultCooldown is how long an auth-failed account stays excluded from
// switch-candidate selection.
const DefaultCooldown = 5 * time.Minute

// SwitchGuard prevents oscillating switches onto accounts that are broken
// rather than rate-limited: an account whose credential was rejected is
// excluded from selection until its cooldown expires.
type SwitchGuard struct {
	mu       sync.Mutex
	failures map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewSwitchGuard creates a guard with the given cooldown window. A zero
// cooldown falls back to DefaultCooldown.
func NewSwitchGuard(cooldown time.Duration) *SwitchGuard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &SwitchGuard{
		failures: make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// RecordFailure timestamps the account as failed-now. Recording the same
// account again refreshes the timestamp; one recent failure is enough to
// exclude it.
func (g *SwitchGuard) RecordFailure(accountID string) {
	if accountID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[accountID] = g.now()
}

// ActiveExclusions returns the account ids whose failure is still inside
// the cooldown window, evicting stale entries as a side effect.
func (g *SwitchGuard) ActiveExclusions() map[string]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.cooldown)
	active := make(map[string]struct{}, len(g.failures))
	for id, at := range g.failures {
		if at.Before(cutoff) {
			delete(g.failures, id)
			continue
		}
		active[id] = struct{}{}
	}
	return active
}
