package monitor

import (
	"testing"
	"time"
)

func TestSwitchGuard_Cooldown(t *testing.T) {
	base := time.Now()
	current := base
	g := NewSwitchGuard(5 * time.Minute)
	g.now = func() time.Time { return current }

	g.RecordFailure("acc-1")

	// One second after the failure the account is excluded.
	current = base.Add(time.Second)
	if _, ok := g.ActiveExclusions()["acc-1"]; !ok {
		t.Error("account should be excluded inside the cooldown window")
	}

	// One second past the cooldown it no longer is.
	current = base.Add(5*time.Minute + time.Second)
	if _, ok := g.ActiveExclusions()["acc-1"]; ok {
		t.Error("account should not be excluded after the cooldown")
	}

	// Eviction happened as a side effect.
	g.mu.Lock()
	_, still := g.failures["acc-1"]
	g.mu.Unlock()
	if still {
		t.Error("stale failure record should have been evicted")
	}
}

func TestSwitchGuard_RecordFailureRefreshes(t *testing.T) {
	base := time.Now()
	current := base
	g := NewSwitchGuard(5 * time.Minute)
	g.now = func() time.Time { return current }

	g.RecordFailure("acc-1")

	// Fail again 4 minutes later; the timestamp refreshes rather than
	// accumulating, so the account stays excluded 8 minutes after the
	// first failure.
	current = base.Add(4 * time.Minute)
	g.RecordFailure("acc-1")

	current = base.Add(8 * time.Minute)
	if _, ok := g.ActiveExclusions()["acc-1"]; !ok {
		t.Error("refreshed failure should still be inside the cooldown")
	}

	current = base.Add(10 * time.Minute)
	if _, ok := g.ActiveExclusions()["acc-1"]; ok {
		t.Error("account should be released after the refreshed cooldown")
	}
}

func TestSwitchGuard_MultipleAccounts(t *testing.T) {
	g := NewSwitchGuard(5 * time.Minute)

	g.RecordFailure("a")
	g.RecordFailure("b")
	g.RecordFailure("")

	excl := g.ActiveExclusions()
	if len(excl) != 2 {
		t.Fatalf("ActiveExclusions() has %d entries, want 2", len(excl))
	}
	for _, id := range []string{"a", "b"} {
		if _, ok := excl[id]; !ok {
			t.Errorf("expected %q in exclusion set", id)
		}
	}
}

func TestNewSwitchGuard_DefaultCooldown(t *testing.T) {
	g := NewSwitchGuard(0)
	if g.cooldown != DefaultCooldown {
		t.Errorf("cooldown = %v, want %v", g.cooldown, DefaultCooldown)
	}
}
