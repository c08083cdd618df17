// Package accounts provides account management with file watching and persistence.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"ccsentinel/internal/logger"
	"ccsentinel/internal/models"
)

// ErrAccountNotFound is returned when an account id does not exist.
var ErrAccountNotFound = errors.New("account not found")

// ErrLastDefaultAccount is returned when deleting the only remaining
// default account.
var ErrLastDefaultAccount = errors.New("cannot delete the last default account")

// ProfilesFile represents the JSON file structure for account storage.
// Tokens live in this file; the 0600 mode is the at-rest protection.
type ProfilesFile struct {
	Accounts      []models.Account `json:"accounts"`
	ActiveAccount string           `json:"activeAccount,omitempty"`
	Version       int              `json:"version,omitempty"`
}

// Event represents an account service event.
type Event struct {
	Type    EventType
	Error   error
	Account *models.Account
}

// EventType defines the type of account event.
type EventType int

const (
	EventAccountsLoaded EventType = iota
	EventAccountsChanged
	EventAccountAdded
	EventAccountUpdated
	EventAccountDeleted
	EventActiveAccountChanged
	EventError
)

// Service owns the account list and the single active-account pointer.
// It is the only writer of both; the monitor requests switches through
// SetActive and never mutates account state directly.
type Service struct {
	mu            sync.RWMutex
	accounts      []models.Account
	activeAccount string
	usage         map[string]*models.UsageSnapshot
	filePath      string
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
}

// New creates a new accounts service and starts file watching.
func New(filePath string) (*Service, error) {
	if filePath == "" {
		return nil, fmt.Errorf("profiles path is required")
	}

	s := &Service{
		accounts:  make([]models.Account, 0),
		usage:     make(map[string]*models.UsageSnapshot),
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}

	if err := s.loadAccounts(); err != nil {
		if os.IsNotExist(err) {
			if err := s.saveAccounts(); err != nil {
				return nil, fmt.Errorf("failed to create profiles file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventAccountsLoaded})

	return s, nil
}

// Events returns the event channel for subscribing to account changes.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// GetAccounts returns a copy of all accounts.
func (s *Service) GetAccounts() []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]models.Account, len(s.accounts))
	copy(accounts, s.accounts)
	return accounts
}

// GetAccount returns an account by id, or nil.
func (s *Service) GetAccount(id string) *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.accounts {
		if s.accounts[i].ID == id {
			acc := s.accounts[i].Clone()
			return &acc
		}
	}
	return nil
}

// GetToken returns the stored credential for an account, or empty when the
// account is unknown or has no token.
func (s *Service) GetToken(id string) string {
	if acc := s.GetAccount(id); acc != nil {
		return acc.Token
	}
	return ""
}

// GetActive returns the currently active account. Once the store holds at
// least one account this never returns nil: an unset or dangling pointer
// falls back to the default account, then to the first one.
func (s *Service) GetActive() *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.accounts {
		if s.accounts[i].ID == s.activeAccount {
			acc := s.accounts[i].Clone()
			return &acc
		}
	}

	for i := range s.accounts {
		if s.accounts[i].IsDefault {
			acc := s.accounts[i].Clone()
			return &acc
		}
	}

	if len(s.accounts) > 0 {
		acc := s.accounts[0].Clone()
		return &acc
	}

	return nil
}

// SetActive atomically updates the active-account pointer.
func (s *Service) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	s.activeAccount = id
	s.accounts[idx].LastActiveAt = time.Now()

	if err := s.saveAccountsLocked(); err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	acc := s.accounts[idx].Clone()
	s.sendEvent(Event{Type: EventActiveAccountChanged, Account: &acc})
	return nil
}

// Add adds a new account, assigning an id if absent. The first account
// becomes both default and active.
func (s *Service) Add(account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		if acc.Name != "" && acc.Name == account.Name {
			return fmt.Errorf("account named %q already exists", account.Name)
		}
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.AddedAt.IsZero() {
		account.AddedAt = time.Now()
	}
	if len(s.accounts) == 0 {
		account.IsDefault = true
	}

	s.accounts = append(s.accounts, account)
	if len(s.accounts) == 1 {
		s.activeAccount = account.ID
	}

	if err := s.saveAccountsLocked(); err != nil {
		// Rollback
		s.accounts = s.accounts[:len(s.accounts)-1]
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	s.sendEvent(Event{Type: EventAccountAdded, Account: &account})
	return nil
}

// Update replaces an existing account by id.
func (s *Service) Update(account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.accounts {
		if s.accounts[i].ID == account.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, account.ID)
	}

	if account.AddedAt.IsZero() {
		account.AddedAt = s.accounts[idx].AddedAt
	}
	if account.LastActiveAt.IsZero() {
		account.LastActiveAt = s.accounts[idx].LastActiveAt
	}
	s.accounts[idx] = account

	if err := s.saveAccountsLocked(); err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	s.sendEvent(Event{Type: EventAccountUpdated, Account: &account})
	return nil
}

// Delete removes an account by id. The last remaining default account
// cannot be deleted.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	if s.accounts[idx].IsDefault && len(s.accounts) == 1 {
		return ErrLastDefaultAccount
	}

	deleted := s.accounts[idx]
	s.accounts = append(s.accounts[:idx], s.accounts[idx+1:]...)
	delete(s.usage, deleted.ID)

	if s.activeAccount == deleted.ID {
		if len(s.accounts) > 0 {
			s.activeAccount = s.accounts[0].ID
		} else {
			s.activeAccount = ""
		}
	}

	if err := s.saveAccountsLocked(); err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	s.sendEvent(Event{Type: EventAccountDeleted, Account: &deleted})
	return nil
}

// RecordUsage stores the latest snapshot for an account. Snapshots feed
// availability ranking and are held in memory only.
func (s *Service) RecordUsage(snap *models.UsageSnapshot) {
	if snap == nil || snap.AccountID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[snap.AccountID] = snap
}

// LatestUsage returns the most recent snapshot recorded for an account.
func (s *Service) LatestUsage(id string) *models.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[id]
}

// RankByAvailability returns all accounts ordered best-alternative-first:
// accounts not near either threshold come before accounts that are, ties
// broken by least-recently-active. An account without a recorded snapshot
// counts as not near; per-account threshold overrides apply when set.
func (s *Service) RankByAvailability(sessionThreshold, weeklyThreshold float64) []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := make([]models.Account, len(s.accounts))
	copy(ranked, s.accounts)

	near := func(acc *models.Account) bool {
		snap := s.usage[acc.ID]
		if snap == nil {
			return false
		}
		st, wt := sessionThreshold, weeklyThreshold
		if acc.SessionThreshold > 0 {
			st = acc.SessionThreshold
		}
		if acc.WeeklyThreshold > 0 {
			wt = acc.WeeklyThreshold
		}
		return snap.SessionPercent >= st || snap.WeeklyPercent >= wt
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ni, nj := near(&ranked[i]), near(&ranked[j])
		if ni != nj {
			return !ni
		}
		return ranked[i].LastActiveAt.Before(ranked[j].LastActiveAt)
	})

	return ranked
}

// Count returns the number of accounts.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// loadAccounts loads accounts from the JSON file.
func (s *Service) loadAccounts() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	accounts, active, err := parseProfiles(data)
	if err != nil {
		return err
	}

	s.accounts = accounts
	s.activeAccount = active
	return nil
}

// parseProfiles parses profile data, tolerating the bare-array legacy format.
func parseProfiles(data []byte) ([]models.Account, string, error) {
	var file ProfilesFile
	if err := json.Unmarshal(data, &file); err == nil && (file.Version > 0 || len(file.Accounts) > 0 || len(data) < 3) {
		active := file.ActiveAccount
		if active != "" {
			found := false
			for _, acc := range file.Accounts {
				if acc.ID == active {
					found = true
					break
				}
			}
			if !found {
				active = ""
			}
		}
		if active == "" && len(file.Accounts) > 0 {
			active = file.Accounts[0].ID
		}
		return file.Accounts, active, nil
	}

	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err == nil {
		var active string
		if len(accounts) > 0 {
			active = accounts[0].ID
		}
		return accounts, active, nil
	}

	return nil, "", fmt.Errorf("failed to parse profiles file: invalid format")
}

// saveAccounts saves accounts to the JSON file (public version).
func (s *Service) saveAccounts() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAccountsLocked()
}

// saveAccountsLocked saves accounts to the JSON file (must hold lock).
func (s *Service) saveAccountsLocked() error {
	file := ProfilesFile{
		Accounts:      s.accounts,
		ActiveAccount: s.activeAccount,
		Version:       1,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	// Write to temp file first, then rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// startWatcher starts the file system watcher.
func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory (to catch file creation/deletion)
	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Debounce rapid changes
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, func() {
					s.handleFileChange()
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads accounts after an external edit.
func (s *Service) handleFileChange() {
	s.mu.Lock()
	data, err := os.ReadFile(s.filePath)
	if err == nil {
		var accounts []models.Account
		var active string
		accounts, active, err = parseProfiles(data)
		if err == nil {
			s.accounts = accounts
			s.activeAccount = active
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	s.sendEvent(Event{Type: EventAccountsChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		logger.Debug("accounts event channel full, dropping event", "type", event.Type)
	}
}

// Close stops the watcher and releases resources.
func (s *Service) Close() error {
	close(s.stopChan)
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
