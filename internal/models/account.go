// Package models defines data structures and domain types.
package models

import "time"

// Account represents a configured Claude account the monitor can use or
// switch to. The token is the only secret it carries; everything else is
// bookkeeping for ranking and display.
type Account struct {
	AddedAt      time.Time `json:"addedAt"`
	LastActiveAt time.Time `json:"lastActiveAt,omitempty"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Token        string    `json:"token,omitempty"`
	IsDefault    bool      `json:"isDefault,omitempty"`
	// Per-account threshold overrides in percent. Zero means "use the
	// global auto-switch settings".
	SessionThreshold float64 `json:"sessionThreshold,omitempty"`
	WeeklyThreshold  float64 `json:"weeklyThreshold,omitempty"`
}

// Clone returns a copy of the account.
func (a *Account) Clone() Account {
	return *a
}

// DisplayName returns the best human-readable identifier for the account.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}

// AccountWithUsage combines an account with its most recent usage snapshot.
type AccountWithUsage struct {
	Usage *UsageSnapshot `json:"usage,omitempty"`
	Account
	IsActive bool `json:"isActive"`
}
