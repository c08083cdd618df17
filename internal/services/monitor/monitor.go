// Package monitor runs the usage polling loop and the proactive
// account-switch procedure.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ccsentinel/internal/config"
	"ccsentinel/internal/logger"
	"ccsentinel/internal/models"
	"ccsentinel/internal/services/usage"
)

// AccountStore is the account collaborator the monitor switches through.
// It is the sole owner of the active-account pointer; the monitor only
// requests mutation via SetActive.
type AccountStore interface {
	GetActive() *models.Account
	GetToken(id string) string
	RecordUsage(snap *models.UsageSnapshot)
	RankByAvailability(sessionThreshold, weeklyThreshold float64) []models.Account
	SetActive(id string) error
}

// Fetcher produces usage snapshots for an account.
type Fetcher interface {
	Fetch(ctx context.Context, account *models.Account, token string) (*models.UsageSnapshot, error)
}

// Event is emitted by the monitor for observers; the monitor has no
// knowledge of how they are rendered.
type Event struct {
	Snapshot      *models.UsageSnapshot
	FromAccount   string
	FromName      string
	ToAccount     string
	ToName        string
	Message       string
	Reason        models.SwapReason
	FailureReason models.SwapFailureReason
	Type          EventType
}

// EventType defines the type of monitor event.
type EventType int

const (
	// EventUsageUpdated carries every successfully fetched snapshot,
	// regardless of threshold status.
	EventUsageUpdated EventType = iota
	// EventSwapCompleted is the machine-readable switch result.
	EventSwapCompleted
	// EventSwapFailed reports that no alternative account was available.
	EventSwapFailed
	// EventSwapNotification is the human-readable companion to a swap,
	// meant for toast display.
	EventSwapNotification
)

// Monitor polls the active account's usage on a timer and switches
// accounts when thresholds are breached or the credential fails.
type Monitor struct {
	store    AccountStore
	fetcher  Fetcher
	guard    *SwitchGuard
	settings config.AutoSwitchSettings

	eventChan chan Event

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
	inFlight atomic.Bool
}

// New creates a monitor. The guard may be shared with other components or
// nil, in which case a default one is created.
func New(store AccountStore, fetcher Fetcher, guard *SwitchGuard, settings config.AutoSwitchSettings) *Monitor {
	if guard == nil {
		guard = NewSwitchGuard(DefaultCooldown)
	}
	if settings.UsageCheckInterval <= 0 {
		settings.UsageCheckInterval = 30 * time.Second
	}
	return &Monitor{
		store:     store,
		fetcher:   fetcher,
		guard:     guard,
		settings:  settings,
		eventChan: make(chan Event, 100),
	}
}

// Events returns the event channel.
func (m *Monitor) Events() <-chan Event {
	return m.eventChan
}

// Running reports whether the polling timer is armed.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start performs one immediate poll and arms the repeating timer. It is a
// no-op when monitoring is disabled by configuration or already running.
func (m *Monitor) Start() {
	if !m.settings.Enabled {
		logger.Info("usage monitoring disabled by configuration")
		return
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go m.loop(stop)
}

// Stop disarms the timer. A poll already in flight completes and its
// events still emit; discarding a fetched snapshot would waste the work.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
}

func (m *Monitor) loop(stop <-chan struct{}) {
	m.Poll(context.Background())

	ticker := time.NewTicker(m.settings.UsageCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Poll(context.Background())
		case <-stop:
			return
		}
	}
}

// Poll runs one monitoring cycle. A cycle already in flight makes this a
// silent no-op: ticks are dropped, never queued, so at most one poll runs
// at any time. Nothing a cycle does can stop future polls.
func (m *Monitor) Poll(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer m.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("usage poll panicked", "panic", r)
		}
	}()

	active := m.store.GetActive()
	if active == nil {
		logger.Debug("no accounts configured, skipping usage poll")
		return
	}

	snap, err := m.fetcher.Fetch(ctx, active, m.store.GetToken(active.ID))
	if err != nil {
		var authErr *usage.AuthError
		if errors.As(err, &authErr) {
			m.handleAuthFailure(active, authErr)
			return
		}
		logger.Error("usage fetch failed", "account", active.DisplayName(), "error", err)
		return
	}
	if snap == nil {
		logger.Debug("no usage data this cycle", "account", active.DisplayName())
		return
	}

	m.store.RecordUsage(snap)
	m.sendEvent(Event{Type: EventUsageUpdated, Snapshot: snap})

	if !m.settings.ProactiveSwapEnabled {
		return
	}

	st, wt := m.thresholdsFor(active)
	if reason, breached := snap.Breaches(st, wt); breached {
		logger.Info("usage threshold breached",
			"account", active.DisplayName(),
			"reason", reason,
			"session", snap.SessionPercent,
			"weekly", snap.WeeklyPercent)
		m.swap(active, reason, nil)
	}
}

// thresholdsFor applies per-account overrides over the global settings.
func (m *Monitor) thresholdsFor(acc *models.Account) (session, weekly float64) {
	session, weekly = m.settings.SessionThreshold, m.settings.WeeklyThreshold
	if acc.SessionThreshold > 0 {
		session = acc.SessionThreshold
	}
	if acc.WeeklyThreshold > 0 {
		weekly = acc.WeeklyThreshold
	}
	return session, weekly
}

// handleAuthFailure records the broken credential and tries to switch
// away from it immediately. Auth failures are treated with session
// urgency: the account is unusable right now.
func (m *Monitor) handleAuthFailure(active *models.Account, authErr *usage.AuthError) {
	logger.Warn("credential rejected, attempting account switch",
		"account", active.DisplayName(), "status", authErr.StatusCode)

	m.guard.RecordFailure(active.ID)
	m.swap(active, models.SwapReasonSession, m.guard.ActiveExclusions())
}

// swap runs the shared switch procedure: pick the best-ranked candidate
// that is neither the current account nor excluded, then move the active
// pointer one hop. The new account is deliberately not re-polled until the
// next timer tick, so simultaneous near-limit accounts cannot cascade.
func (m *Monitor) swap(active *models.Account, reason models.SwapReason, exclusions map[string]struct{}) {
	ranked := m.store.RankByAvailability(m.settings.SessionThreshold, m.settings.WeeklyThreshold)

	alternatives := 0
	var best *models.Account
	for i := range ranked {
		if ranked[i].ID == active.ID {
			continue
		}
		alternatives++
		if _, excluded := exclusions[ranked[i].ID]; excluded {
			continue
		}
		if best == nil {
			best = &ranked[i]
		}
	}

	if best == nil {
		failure := models.SwapFailureNoAlternative
		if alternatives > 0 {
			failure = models.SwapFailureAllAuthFailed
		}
		logger.Warn("no account to switch to", "reason", failure)
		m.sendEvent(Event{
			Type:          EventSwapFailed,
			FromAccount:   active.ID,
			FromName:      active.DisplayName(),
			Reason:        reason,
			FailureReason: failure,
		})
		return
	}

	if err := m.store.SetActive(best.ID); err != nil {
		logger.Error("account switch failed", "to", best.DisplayName(), "error", err)
		return
	}

	logger.Info("switched active account",
		"from", active.DisplayName(), "to", best.DisplayName(), "reason", reason)

	m.sendEvent(Event{
		Type:        EventSwapCompleted,
		FromAccount: active.ID,
		FromName:    active.DisplayName(),
		ToAccount:   best.ID,
		ToName:      best.DisplayName(),
		Reason:      reason,
	})
	m.sendEvent(Event{
		Type:        EventSwapNotification,
		FromAccount: active.ID,
		ToAccount:   best.ID,
		Reason:      reason,
		Message: fmt.Sprintf("Switched from %s to %s (%s limit reached)",
			active.DisplayName(), best.DisplayName(), reason),
	})
}

// sendEvent sends an event to the event channel non-blocking.
func (m *Monitor) sendEvent(event Event) {
	select {
	case m.eventChan <- event:
	default:
		logger.Debug("monitor event channel full, dropping event", "type", event.Type)
	}
}
