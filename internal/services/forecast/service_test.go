package forecast

import (
	"path/filepath"
	"testing"
	"time"

	"ccsentinel/internal/db"
	"ccsentinel/internal/models"
)

func newTestService(t *testing.T) (*Service, *db.DB, time.Time) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	now := time.Now().UTC().Truncate(time.Second)
	svc := New(database)
	svc.now = func() time.Time { return now }
	return svc, database, now
}

func insertSnaps(t *testing.T, database *db.DB, accountID string, now time.Time, sessions []float64, step time.Duration) {
	t.Helper()
	for i, session := range sessions {
		snap := &models.UsageSnapshot{
			AccountID:      accountID,
			SessionPercent: session,
			WeeklyPercent:  session / 4,
			LimitType:      models.LimitSession,
			Source:         models.SourceAPI,
			FetchedAt:      now.Add(-time.Duration(len(sessions)-1-i) * step),
		}
		if err := database.InsertUsageSnapshot(snap); err != nil {
			t.Fatalf("InsertUsageSnapshot() error = %v", err)
		}
	}
}

func TestForAccount_NoData(t *testing.T) {
	svc, _, _ := newTestService(t)

	session, weekly, err := svc.ForAccount("missing")
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}
	if session.WillDeplete || weekly.WillDeplete {
		t.Error("forecast without data must not predict depletion")
	}
	if session.Confidence != "low" {
		t.Errorf("Confidence = %q, want low", session.Confidence)
	}
	if session.RatePerHour != 0 {
		t.Errorf("RatePerHour = %v, want 0", session.RatePerHour)
	}
}

func TestForAccount_SteadyBurn(t *testing.T) {
	svc, database, now := newTestService(t)

	// 10% per reading at 30-minute spacing: 20%/hour.
	insertSnaps(t, database, "acc-1", now,
		[]float64{10, 20, 30, 40, 50, 60, 70}, 30*time.Minute)

	session, _, err := svc.ForAccount("acc-1")
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}

	if session.CurrentPercent != 70 {
		t.Errorf("CurrentPercent = %v, want 70", session.CurrentPercent)
	}
	if session.RatePerHour < 19.9 || session.RatePerHour > 20.1 {
		t.Errorf("RatePerHour = %v, want ~20", session.RatePerHour)
	}
	if !session.WillDeplete {
		t.Error("rising usage with no known reset must predict depletion")
	}
	// 30% left at 20%/hour = 1.5 hours.
	want := now.Add(90 * time.Minute)
	if diff := session.DepletionAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("DepletionAt = %v, want ~%v", session.DepletionAt, want)
	}
	if session.Confidence != "medium" {
		t.Errorf("Confidence = %q, want medium for 7 points", session.Confidence)
	}
}

func TestForAccount_ResetRestartsSegment(t *testing.T) {
	svc, database, now := newTestService(t)

	// The window reset between the third and fourth readings; only the
	// tail after the drop may feed the rate.
	insertSnaps(t, database, "acc-1", now,
		[]float64{80, 90, 95, 5, 15, 25}, 30*time.Minute)

	session, _, err := svc.ForAccount("acc-1")
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}

	if session.CurrentPercent != 25 {
		t.Errorf("CurrentPercent = %v, want 25", session.CurrentPercent)
	}
	// Tail burns 20% over one hour.
	if session.RatePerHour < 19.9 || session.RatePerHour > 20.1 {
		t.Errorf("RatePerHour = %v, want ~20 from post-reset tail", session.RatePerHour)
	}
	if session.Confidence != "low" {
		t.Errorf("Confidence = %q, want low for a 3-point tail", session.Confidence)
	}
}

func TestForAccount_FlatUsage(t *testing.T) {
	svc, database, now := newTestService(t)

	insertSnaps(t, database, "acc-1", now,
		[]float64{40, 40, 40, 40, 40, 40}, 30*time.Minute)

	session, _, err := svc.ForAccount("acc-1")
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}
	if session.WillDeplete {
		t.Error("flat usage must not predict depletion")
	}
	if session.RatePerHour != 0 {
		t.Errorf("RatePerHour = %v, want 0", session.RatePerHour)
	}
}

func TestForAccount_ResetBeforeDepletion(t *testing.T) {
	svc, database, now := newTestService(t)

	// Slow burn, but the session window resets in 30 minutes.
	for i := 0; i < 6; i++ {
		snap := &models.UsageSnapshot{
			AccountID:      "acc-1",
			SessionPercent: float64(50 + i),
			LimitType:      models.LimitSession,
			Source:         models.SourceAPI,
			SessionResetAt: now.Add(30 * time.Minute),
			FetchedAt:      now.Add(-time.Duration(5-i) * 30 * time.Minute),
		}
		if err := database.InsertUsageSnapshot(snap); err != nil {
			t.Fatalf("InsertUsageSnapshot() error = %v", err)
		}
	}

	session, _, err := svc.ForAccount("acc-1")
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}
	if session.RatePerHour <= 0 {
		t.Fatalf("RatePerHour = %v, want positive", session.RatePerHour)
	}
	if session.WillDeplete {
		t.Error("window resets before projected depletion, WillDeplete must be false")
	}
}

func TestForAccount_WeeklyIndependent(t *testing.T) {
	svc, database, now := newTestService(t)

	insertSnaps(t, database, "acc-1", now,
		[]float64{20, 40, 60, 80}, 30*time.Minute)

	session, weekly, err := svc.ForAccount("acc-1")
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}
	if weekly.CurrentPercent != 20 {
		t.Errorf("weekly CurrentPercent = %v, want 20", weekly.CurrentPercent)
	}
	if weekly.RatePerHour >= session.RatePerHour {
		t.Errorf("weekly rate %v should be below session rate %v",
			weekly.RatePerHour, session.RatePerHour)
	}
	if weekly.Limit != models.LimitWeekly || session.Limit != models.LimitSession {
		t.Errorf("limits = %v/%v", session.Limit, weekly.Limit)
	}
}
