package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ccsentinel/internal/config"
	"ccsentinel/internal/models"
	"ccsentinel/internal/services/monitor"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ProfilesPath: filepath.Join(dir, "profiles.json"),
		DatabasePath: filepath.Join(dir, "history.db"),
		AutoSwitch: config.AutoSwitchSettings{
			Enabled:            false, // no background polling in tests
			UsageCheckInterval: time.Hour,
			SessionThreshold:   90,
			WeeklyThreshold:    90,
		},
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// waitForEvent drains the channel until an event of type T satisfies
// match (nil matches any), skipping unrelated events along the way.
func waitForEvent[T ServiceEvent](t *testing.T, ch <-chan ServiceEvent, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if typed, ok := ev.(T); ok && (match == nil || match(typed)) {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestManager_AccountEventsBroadcast(t *testing.T) {
	m := newTestManager(t)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	if err := m.Accounts().Add(models.Account{Name: "work", Token: "sk-1"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ev := waitForEvent(t, sub, func(ev AccountsChangedEvent) bool {
		return len(ev.Accounts) == 1
	})
	if ev.Accounts[0].Name != "work" {
		t.Errorf("accounts = %+v", ev.Accounts)
	}
	if ev.ActiveAccount == nil || ev.ActiveAccount.Name != "work" {
		t.Error("first account should become active")
	}
}

func TestManager_UsageEventPersistsAndBroadcasts(t *testing.T) {
	m := newTestManager(t)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	snap := &models.UsageSnapshot{
		AccountID:      "acc-1",
		SessionPercent: 55,
		WeeklyPercent:  20,
		LimitType:      models.LimitSession,
		Source:         models.SourceAPI,
		FetchedAt:      time.Now(),
	}
	m.handleMonitorEvent(monitor.Event{Type: monitor.EventUsageUpdated, Snapshot: snap})

	ev := waitForEvent[UsageUpdatedEvent](t, sub, nil)
	if ev.Snapshot.SessionPercent != 55 {
		t.Errorf("broadcast snapshot = %+v", ev.Snapshot)
	}

	stored, err := m.Database().GetRecentSnapshots("acc-1", time.Time{})
	if err != nil {
		t.Fatalf("GetRecentSnapshots() error = %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("%d snapshots stored, want 1", len(stored))
	}
}

func TestManager_SwapEventPersistsAndNotifies(t *testing.T) {
	m := newTestManager(t)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	var mu sync.Mutex
	var notifications []string
	m.notify = func(title, body string) error {
		mu.Lock()
		defer mu.Unlock()
		notifications = append(notifications, title+": "+body)
		return nil
	}

	m.handleMonitorEvent(monitor.Event{
		Type:        monitor.EventSwapCompleted,
		FromAccount: "a", FromName: "default",
		ToAccount: "b", ToName: "backup",
		Reason: models.SwapReasonSession,
	})
	m.handleMonitorEvent(monitor.Event{
		Type:    monitor.EventSwapNotification,
		Message: "Switched from default to backup (session limit reached)",
	})

	ev := waitForEvent[SwapCompletedEvent](t, sub, nil)
	if ev.FromAccount != "a" || ev.ToAccount != "b" || ev.Reason != models.SwapReasonSession {
		t.Errorf("swap event = %+v", ev)
	}

	swaps, err := m.GetRecentSwaps(10)
	if err != nil {
		t.Fatalf("GetRecentSwaps() error = %v", err)
	}
	if len(swaps) != 1 || swaps[0].FromAccount != "a" || swaps[0].ToAccount != "b" {
		t.Errorf("stored swaps = %+v", swaps)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notifications) != 1 {
		t.Fatalf("%d notifications sent, want 1", len(notifications))
	}
}

func TestManager_SwapFailedNotifies(t *testing.T) {
	m := newTestManager(t)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	var mu sync.Mutex
	notified := false
	m.notify = func(title, body string) error {
		mu.Lock()
		defer mu.Unlock()
		notified = true
		return nil
	}

	m.handleMonitorEvent(monitor.Event{
		Type:          monitor.EventSwapFailed,
		FromAccount:   "a",
		FromName:      "default",
		Reason:        models.SwapReasonSession,
		FailureReason: models.SwapFailureNoAlternative,
	})

	ev := waitForEvent[SwapFailedEvent](t, sub, nil)
	if ev.FailureReason != models.SwapFailureNoAlternative {
		t.Errorf("failure reason = %q", ev.FailureReason)
	}

	mu.Lock()
	defer mu.Unlock()
	if !notified {
		t.Error("swap failure should raise a desktop notification")
	}
}

func TestManager_GetAccountsWithUsage(t *testing.T) {
	m := newTestManager(t)

	if err := m.Accounts().Add(models.Account{Name: "work"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	accs := m.Accounts().GetAccounts()
	m.Accounts().RecordUsage(&models.UsageSnapshot{
		AccountID:      accs[0].ID,
		SessionPercent: 33,
		FetchedAt:      time.Now(),
	})

	withUsage := m.GetAccountsWithUsage()
	if len(withUsage) != 1 {
		t.Fatalf("got %d accounts, want 1", len(withUsage))
	}
	if !withUsage[0].IsActive {
		t.Error("sole account should be active")
	}
	if withUsage[0].Usage == nil || withUsage[0].Usage.SessionPercent != 33 {
		t.Errorf("usage = %+v", withUsage[0].Usage)
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	m := newTestManager(t)
	sub := m.Subscribe()
	m.Unsubscribe(sub)

	// Channel must be closed.
	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after Unsubscribe")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after Unsubscribe")
	}
}
