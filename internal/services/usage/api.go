// Package usage produces usage snapshots for accounts, preferring the
// OAuth usage API and falling back to the claude CLI.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ccsentinel/internal/models"
)

// Default OAuth usage endpoint.
const defaultEndpoint = "https://api.anthropic.com/api/oauth/usage"

// AuthError signals that the credential itself was rejected (401/403).
// It propagates to the caller instead of triggering the CLI fallback.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("usage API rejected credential (status %d)", e.StatusCode)
}

// usagePayload is the wire shape shared by the API response and the CLI's
// JSON output: a five-hour session window and a seven-day weekly window.
type usagePayload struct {
	FiveHour *usageWindow `json:"five_hour"`
	SevenDay *usageWindow `json:"seven_day"`
}

type usageWindow struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

func (p *usagePayload) toSnapshot(account *models.Account, source models.Source) *models.UsageSnapshot {
	snap := &models.UsageSnapshot{
		AccountID:   account.ID,
		AccountName: account.DisplayName(),
		FetchedAt:   time.Now(),
		Source:      source,
	}

	if p.FiveHour != nil {
		snap.SessionPercent = p.FiveHour.Utilization
		if t, err := time.Parse(time.RFC3339, p.FiveHour.ResetsAt); err == nil {
			snap.SessionResetAt = t
		}
	}
	if p.SevenDay != nil {
		snap.WeeklyPercent = p.SevenDay.Utilization
		if t, err := time.Parse(time.RFC3339, p.SevenDay.ResetsAt); err == nil {
			snap.WeeklyResetAt = t
		}
	}

	snap.LimitType = models.DominantLimit(snap.SessionPercent, snap.WeeklyPercent)
	return snap
}

// fetchFromAPI calls the OAuth usage endpoint with the account credential.
func (s *Service) fetchFromAPI(ctx context.Context, account *models.Account, token string) (*models.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("anthropic-beta", "oauth-2025-04-20")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var payload usagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse usage response: %w", err)
	}
	if payload.FiveHour == nil && payload.SevenDay == nil {
		return nil, fmt.Errorf("usage response carried no quota windows")
	}

	return payload.toSnapshot(account, models.SourceAPI), nil
}
