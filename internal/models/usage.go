package models

import "time"

// Source identifies which strategy produced a usage snapshot.
type Source string

const (
	// SourceAPI means the snapshot came from the OAuth usage endpoint.
	SourceAPI Source = "api"
	// SourceCLI means the snapshot was parsed from the claude CLI output.
	SourceCLI Source = "cli"
)

// LimitType names the quota dimension closest to its cap.
type LimitType string

const (
	LimitSession LimitType = "session"
	LimitWeekly  LimitType = "weekly"
)

// SwapReason is the trigger that caused (or failed) an account switch.
type SwapReason string

const (
	SwapReasonSession SwapReason = "session"
	SwapReasonWeekly  SwapReason = "weekly"
)

// SwapFailureReason distinguishes why no alternative account was selected.
type SwapFailureReason string

const (
	// SwapFailureNoAlternative means no other account is configured.
	SwapFailureNoAlternative SwapFailureReason = "no_alternative"
	// SwapFailureAllAuthFailed means alternatives exist but every one of
	// them is inside the auth-failure cooldown.
	SwapFailureAllAuthFailed SwapFailureReason = "all_alternatives_failed_auth"
)

// UsageSnapshot is a point-in-time usage measurement for one account.
// Snapshots are produced on each poll and immediately superseded by the
// next one; the monitor never persists them itself.
type UsageSnapshot struct {
	FetchedAt      time.Time `json:"fetchedAt"`
	SessionResetAt time.Time `json:"sessionResetAt,omitempty"`
	WeeklyResetAt  time.Time `json:"weeklyResetAt,omitempty"`
	AccountID      string    `json:"accountId"`
	AccountName    string    `json:"accountName,omitempty"`
	LimitType      LimitType `json:"limitType"`
	Source         Source    `json:"source"`
	SessionPercent float64   `json:"sessionPercent"`
	WeeklyPercent  float64   `json:"weeklyPercent"`
}

// DominantLimit returns the quota dimension closest to its cap. Equal
// percentages count as session, the more urgent window.
func DominantLimit(sessionPercent, weeklyPercent float64) LimitType {
	if weeklyPercent > sessionPercent {
		return LimitWeekly
	}
	return LimitSession
}

// Breaches reports whether the snapshot meets or exceeds either threshold,
// and which dimension tripped first. Session takes priority when both are
// breached at once.
func (s *UsageSnapshot) Breaches(sessionThreshold, weeklyThreshold float64) (SwapReason, bool) {
	if s.SessionPercent >= sessionThreshold {
		return SwapReasonSession, true
	}
	if s.WeeklyPercent >= weeklyThreshold {
		return SwapReasonWeekly, true
	}
	return "", false
}
