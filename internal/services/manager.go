// Package services provides service orchestration for the daemon.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"ccsentinel/internal/config"
	"ccsentinel/internal/db"
	"ccsentinel/internal/logger"
	"ccsentinel/internal/models"
	"ccsentinel/internal/services/accounts"
	"ccsentinel/internal/services/forecast"
	"ccsentinel/internal/services/monitor"
	"ccsentinel/internal/services/usage"
)

type (
	// AccountsChangedEvent is emitted when the accounts list changes.
	AccountsChangedEvent struct {
		Accounts      []models.Account
		ActiveAccount *models.Account
	}

	// UsageUpdatedEvent is emitted on every successful usage poll.
	UsageUpdatedEvent struct {
		Snapshot *models.UsageSnapshot
	}

	// SwapCompletedEvent is emitted after a proactive account switch.
	SwapCompletedEvent struct {
		FromAccount string
		FromName    string
		ToAccount   string
		ToName      string
		Reason      models.SwapReason
	}

	// SwapFailedEvent is emitted when a switch was needed but no
	// alternative account could take over.
	SwapFailedEvent struct {
		FromAccount   string
		FromName      string
		Reason        models.SwapReason
		FailureReason models.SwapFailureReason
	}

	// ForecastUpdatedEvent carries fresh depletion estimates for the
	// active account.
	ForecastUpdatedEvent struct {
		AccountID string
		Session   *models.Forecast
		Weekly    *models.Forecast
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (AccountsChangedEvent) isServiceEvent() {}
func (UsageUpdatedEvent) isServiceEvent()    {}
func (SwapCompletedEvent) isServiceEvent()   {}
func (SwapFailedEvent) isServiceEvent()      {}
func (ForecastUpdatedEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent()           {}

// snapshotRetention is how long recorded snapshots are kept before the
// periodic prune removes them.
const snapshotRetention = 90 * 24 * time.Hour

// Manager orchestrates services and event routing.
type Manager struct {
	mu          sync.RWMutex
	accounts    *accounts.Service
	fetcher     *usage.Service
	monitor     *monitor.Monitor
	forecast    *forecast.Service
	database    *db.DB
	eventChan   chan ServiceEvent
	stopChan    chan struct{}
	subscribers []chan<- ServiceEvent
	notify      func(title, body string) error
}

// NewManager creates a new service manager.
func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{
		eventChan: make(chan ServiceEvent, 100),
		stopChan:  make(chan struct{}),
		notify: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
	}

	var err error
	m.accounts, err = accounts.New(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}

	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		_ = m.accounts.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.forecast = forecast.New(m.database)

	fetcherConfig := usage.DefaultConfig()
	fetcherConfig.ClaudeCommand = cfg.ClaudeCommand
	m.fetcher = usage.New(fetcherConfig)

	m.monitor = monitor.New(m.accounts, m.fetcher, nil, cfg.AutoSwitch)

	go m.routeEvents()

	return m, nil
}

// Start arms the usage polling loop.
func (m *Manager) Start() {
	m.monitor.Start()
}

// routeEvents routes events from individual services to subscribers.
func (m *Manager) routeEvents() {
	pruneTicker := time.NewTicker(24 * time.Hour)
	defer pruneTicker.Stop()

	for {
		select {
		case event := <-m.accounts.Events():
			m.handleAccountEvent(event)

		case event := <-m.monitor.Events():
			m.handleMonitorEvent(event)

		case <-pruneTicker.C:
			m.pruneHistory()

		case <-m.stopChan:
			return
		}
	}
}

// handleAccountEvent converts and broadcasts account events.
func (m *Manager) handleAccountEvent(event accounts.Event) {
	switch event.Type {
	case accounts.EventAccountsLoaded, accounts.EventAccountsChanged,
		accounts.EventAccountAdded, accounts.EventAccountUpdated,
		accounts.EventAccountDeleted, accounts.EventActiveAccountChanged:

		m.broadcast(AccountsChangedEvent{
			Accounts:      m.accounts.GetAccounts(),
			ActiveAccount: m.accounts.GetActive(),
		})

	case accounts.EventError:
		m.broadcast(ErrorEvent{
			Service: "accounts",
			Error:   event.Error,
		})
	}
}

func (m *Manager) handleMonitorEvent(event monitor.Event) {
	switch event.Type {
	case monitor.EventUsageUpdated:
		if event.Snapshot == nil {
			return
		}
		if err := m.database.InsertUsageSnapshot(event.Snapshot); err != nil {
			logger.Error("failed to persist usage snapshot", "error", err)
		}
		m.broadcast(UsageUpdatedEvent{Snapshot: event.Snapshot})
		go m.updateForecast(event.Snapshot.AccountID)

	case monitor.EventSwapCompleted:
		record := &models.SwapRecord{
			Timestamp:   time.Now(),
			FromAccount: event.FromAccount,
			ToAccount:   event.ToAccount,
			Reason:      event.Reason,
		}
		if err := m.database.InsertSwapEvent(record); err != nil {
			logger.Error("failed to persist swap event", "error", err)
		}
		m.broadcast(SwapCompletedEvent{
			FromAccount: event.FromAccount,
			FromName:    event.FromName,
			ToAccount:   event.ToAccount,
			ToName:      event.ToName,
			Reason:      event.Reason,
		})

	case monitor.EventSwapFailed:
		m.broadcast(SwapFailedEvent{
			FromAccount:   event.FromAccount,
			FromName:      event.FromName,
			Reason:        event.Reason,
			FailureReason: event.FailureReason,
		})
		if err := m.notify("Account Switch Failed",
			fmt.Sprintf("No alternative account available for %s", event.FromName)); err != nil {
			logger.Debug("desktop notification failed", "error", err)
		}

	case monitor.EventSwapNotification:
		if err := m.notify("Account Switched", event.Message); err != nil {
			logger.Debug("desktop notification failed", "error", err)
		}
	}
}

func (m *Manager) updateForecast(accountID string) {
	session, weekly, err := m.forecast.ForAccount(accountID)
	if err != nil {
		logger.Error("failed to update forecast", "account", accountID, "error", err)
		return
	}
	m.broadcast(ForecastUpdatedEvent{
		AccountID: accountID,
		Session:   session,
		Weekly:    weekly,
	})
}

func (m *Manager) pruneHistory() {
	pruned, err := m.database.PruneSnapshotsBefore(time.Now().Add(-snapshotRetention))
	if err != nil {
		logger.Error("failed to prune snapshot history", "error", err)
		return
	}
	if pruned > 0 {
		logger.Debug("pruned old usage snapshots", "rows", pruned)
	}
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	select {
	case m.eventChan <- event:
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Events returns the manager's main event channel.
func (m *Manager) Events() <-chan ServiceEvent {
	return m.eventChan
}

// Subscribe creates a channel for receiving service events.
func (m *Manager) Subscribe() chan ServiceEvent {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// GetAccountsWithUsage returns all accounts with their latest snapshots.
func (m *Manager) GetAccountsWithUsage() []models.AccountWithUsage {
	accs := m.accounts.GetAccounts()
	active := m.accounts.GetActive()

	result := make([]models.AccountWithUsage, len(accs))
	for i, acc := range accs {
		result[i] = models.AccountWithUsage{
			Account:  acc,
			Usage:    m.accounts.LatestUsage(acc.ID),
			IsActive: active != nil && acc.ID == active.ID,
		}
	}
	return result
}

// Poll runs one monitoring cycle outside the timer, for on-demand checks.
func (m *Manager) Poll() {
	m.monitor.Poll(context.Background())
}

// GetAccountHistory retrieves historical statistics for a specific account.
func (m *Manager) GetAccountHistory(accountID string, timeRange models.TimeRange) (*models.AccountHistoryStats, error) {
	if m.database == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return m.database.GetAccountHistoryStats(accountID, timeRange)
}

// GetRecentSwaps returns the most recent account switches.
func (m *Manager) GetRecentSwaps(limit int) ([]models.SwapRecord, error) {
	return m.database.GetRecentSwaps(limit)
}

// GetForecast returns depletion estimates for one account.
func (m *Manager) GetForecast(accountID string) (session, weekly *models.Forecast, err error) {
	return m.forecast.ForAccount(accountID)
}

// Accounts returns the accounts service.
func (m *Manager) Accounts() *accounts.Service {
	return m.accounts
}

// Monitor returns the usage monitor.
func (m *Manager) Monitor() *monitor.Monitor {
	return m.monitor
}

// Fetcher returns the usage fetcher.
func (m *Manager) Fetcher() *usage.Service {
	return m.fetcher
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Close closes the manager and all its services.
func (m *Manager) Close() error {
	m.monitor.Stop()
	close(m.stopChan)

	m.mu.Lock()
	for _, sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = nil
	m.mu.Unlock()

	var errs []error

	if err := m.accounts.Close(); err != nil {
		errs = append(errs, err)
	}

	if m.database != nil {
		if err := m.database.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
