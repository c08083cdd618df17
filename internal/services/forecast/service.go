// Package forecast estimates when an account's quota windows will hit
// their caps, based on recently recorded usage.
package forecast

import (
	"fmt"
	"time"

	"ccsentinel/internal/db"
	"ccsentinel/internal/models"
)

const (
	// defaultLookback is how far back snapshots are considered when
	// estimating the burn rate.
	defaultLookback = 6 * time.Hour

	lowConfThreshold = 6
	medConfThreshold = 24
)

// Service computes depletion forecasts from stored snapshots.
type Service struct {
	db       *db.DB
	lookback time.Duration
	now      func() time.Time
}

// New creates a forecast service backed by the given database.
func New(database *db.DB) *Service {
	return &Service{
		db:       database,
		lookback: defaultLookback,
		now:      time.Now,
	}
}

// ForAccount returns the session and weekly forecasts for one account.
// An account with no recorded snapshots yields a zero-rate forecast with
// low confidence rather than an error.
func (s *Service) ForAccount(accountID string) (session, weekly *models.Forecast, err error) {
	now := s.now()
	snaps, err := s.db.GetRecentSnapshots(accountID, now.Add(-s.lookback))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshots for forecast: %w", err)
	}

	session = s.forecast(accountID, models.LimitSession, snaps, now)
	weekly = s.forecast(accountID, models.LimitWeekly, snaps, now)
	return session, weekly, nil
}

func (s *Service) forecast(accountID string, limit models.LimitType, snaps []models.UsageSnapshot, now time.Time) *models.Forecast {
	f := &models.Forecast{
		PredictedAt: now,
		AccountID:   accountID,
		Limit:       limit,
		Confidence:  "low",
	}

	percent := func(snap *models.UsageSnapshot) float64 {
		if limit == models.LimitWeekly {
			return snap.WeeklyPercent
		}
		return snap.SessionPercent
	}

	if len(snaps) == 0 {
		return f
	}

	latest := snaps[len(snaps)-1]
	f.CurrentPercent = percent(&latest)

	// A drop in percent means the window reset; only the monotonic tail
	// since the last reset reflects the current window's burn.
	start := 0
	for i := 1; i < len(snaps); i++ {
		if percent(&snaps[i]) < percent(&snaps[i-1]) {
			start = i
		}
	}
	segment := snaps[start:]

	points := len(segment)
	switch {
	case points < lowConfThreshold:
		f.Confidence = "low"
	case points < medConfThreshold:
		f.Confidence = "medium"
	default:
		f.Confidence = "high"
	}

	if points < 2 {
		return f
	}

	first, last := segment[0], segment[points-1]
	hours := last.FetchedAt.Sub(first.FetchedAt).Hours()
	if hours <= 0 {
		return f
	}
	f.RatePerHour = (percent(&last) - percent(&first)) / hours

	if f.RatePerHour <= 0 {
		return f
	}

	hoursLeft := (100 - f.CurrentPercent) / f.RatePerHour
	f.DepletionAt = now.Add(time.Duration(hoursLeft * float64(time.Hour)))

	resetAt := latest.SessionResetAt
	if limit == models.LimitWeekly {
		resetAt = latest.WeeklyResetAt
	}
	if resetAt.IsZero() {
		f.WillDeplete = true
	} else {
		f.WillDeplete = f.DepletionAt.Before(resetAt)
	}

	return f
}
