package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ccsentinel/internal/logger"
	"ccsentinel/internal/models"
)

// InsertUsageSnapshot records a point-in-time usage reading.
func (db *DB) InsertUsageSnapshot(snap *models.UsageSnapshot) error {
	query := `
		INSERT INTO usage_snapshots (
			account_id, account_name, session_percent, weekly_percent,
			limit_type, source, session_reset_at, weekly_reset_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	_, err := db.ExecContext(context.Background(), query,
		snap.AccountID,
		nullString(snap.AccountName),
		snap.SessionPercent,
		snap.WeeklyPercent,
		string(snap.LimitType),
		string(snap.Source),
		nullTime(snap.SessionResetAt),
		nullTime(snap.WeeklyResetAt),
		fetchedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage snapshot: %w", err)
	}

	return nil
}

// GetRecentSnapshots returns snapshots for one account recorded at or
// after since, oldest first. The ordering feeds straight into the
// burn-rate estimator.
func (db *DB) GetRecentSnapshots(accountID string, since time.Time) ([]models.UsageSnapshot, error) {
	query := `
		SELECT account_id, account_name, session_percent, weekly_percent,
			   limit_type, source, session_reset_at, weekly_reset_at, fetched_at
		FROM usage_snapshots
		WHERE account_id = ? AND fetched_at >= ?
		ORDER BY fetched_at ASC
	`

	rows, err := db.QueryContext(context.Background(), query,
		accountID, since.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent snapshots: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var snaps []models.UsageSnapshot
	for rows.Next() {
		var snap models.UsageSnapshot
		var name sql.NullString
		var limitType, source, fetchedAt string
		var sessionReset, weeklyReset sql.NullString

		err := rows.Scan(
			&snap.AccountID,
			&name,
			&snap.SessionPercent,
			&snap.WeeklyPercent,
			&limitType,
			&source,
			&sessionReset,
			&weeklyReset,
			&fetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage snapshot: %w", err)
		}

		snap.AccountName = name.String
		snap.LimitType = models.LimitType(limitType)
		snap.Source = models.Source(source)
		snap.FetchedAt = parseTime(fetchedAt)
		if sessionReset.Valid {
			snap.SessionResetAt = parseTime(sessionReset.String)
		}
		if weeklyReset.Valid {
			snap.WeeklyResetAt = parseTime(weeklyReset.String)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// InsertSwapEvent records a completed account switch.
func (db *DB) InsertSwapEvent(rec *models.SwapRecord) error {
	query := `
		INSERT INTO swap_events (from_account, to_account, reason, timestamp)
		VALUES (?, ?, ?, ?)
	`

	timestamp := rec.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err := db.ExecContext(context.Background(), query,
		rec.FromAccount,
		rec.ToAccount,
		string(rec.Reason),
		timestamp.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap event: %w", err)
	}

	return nil
}

// GetRecentSwaps returns the most recent account switches, newest first.
func (db *DB) GetRecentSwaps(limit int) ([]models.SwapRecord, error) {
	query := `
		SELECT from_account, to_account, reason, timestamp
		FROM swap_events
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(context.Background(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent swaps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var swaps []models.SwapRecord
	for rows.Next() {
		var rec models.SwapRecord
		var reason, timestamp string

		if err := rows.Scan(&rec.FromAccount, &rec.ToAccount, &reason, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan swap event: %w", err)
		}

		rec.Reason = models.SwapReason(reason)
		rec.Timestamp = parseTime(timestamp)
		swaps = append(swaps, rec)
	}

	return swaps, rows.Err()
}

// GetAccountHistoryStats aggregates recorded usage for one account over
// the given window.
func (db *DB) GetAccountHistoryStats(accountID string, timeRange models.TimeRange) (*models.AccountHistoryStats, error) {
	stats := &models.AccountHistoryStats{
		AccountID: accountID,
		TimeRange: timeRange,
	}

	snapQuery := `
		SELECT
			COUNT(*) as data_points,
			COALESCE(AVG(session_percent), 0) as avg_session,
			COALESCE(MAX(session_percent), 0) as peak_session,
			COALESCE(AVG(weekly_percent), 0) as avg_weekly,
			COALESCE(MAX(weekly_percent), 0) as peak_weekly,
			COALESCE(MIN(fetched_at), '') as first_point,
			COALESCE(MAX(fetched_at), '') as last_point
		FROM usage_snapshots
		WHERE account_id = ?
	`
	args := []any{accountID}
	if days := timeRange.Days(); days > 0 {
		snapQuery += " AND fetched_at >= datetime('now', ?)"
		args = append(args, fmt.Sprintf("-%d days", days))
	}

	var firstPoint, lastPoint string
	err := db.QueryRowContext(context.Background(), snapQuery, args...).Scan(
		&stats.DataPoints,
		&stats.AvgSessionPercent,
		&stats.PeakSessionPercent,
		&stats.AvgWeeklyPercent,
		&stats.PeakWeeklyPercent,
		&firstPoint,
		&lastPoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}
	stats.FirstDataPoint = parseTime(firstPoint)
	stats.LastDataPoint = parseTime(lastPoint)

	swapQuery := `
		SELECT
			SUM(CASE WHEN from_account = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN to_account = ? THEN 1 ELSE 0 END)
		FROM swap_events
		WHERE (from_account = ? OR to_account = ?)
	`
	swapArgs := []any{accountID, accountID, accountID, accountID}
	if days := timeRange.Days(); days > 0 {
		swapQuery += " AND timestamp >= datetime('now', ?)"
		swapArgs = append(swapArgs, fmt.Sprintf("-%d days", days))
	}

	var swapsFrom, swapsTo sql.NullInt64
	err = db.QueryRowContext(context.Background(), swapQuery, swapArgs...).Scan(&swapsFrom, &swapsTo)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap counts: %w", err)
	}
	stats.SwapsFrom = int(swapsFrom.Int64)
	stats.SwapsTo = int(swapsTo.Int64)

	return stats, nil
}

// PruneSnapshotsBefore deletes snapshots older than the cutoff. Swap
// events are small and kept indefinitely.
func (db *DB) PruneSnapshotsBefore(cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(context.Background(),
		"DELETE FROM usage_snapshots WHERE fetched_at < ?",
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime formats a time for storage, mapping the zero value to NULL.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}
