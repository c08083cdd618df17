package models

import "time"

// TimeRange represents a history query window.
type TimeRange int

const (
	// TimeRange24Hours covers the last 24 hours.
	TimeRange24Hours TimeRange = iota
	// TimeRange7Days covers the last 7 days.
	TimeRange7Days
	// TimeRange30Days covers the last 30 days.
	TimeRange30Days
	// TimeRangeAllTime covers all recorded data.
	TimeRangeAllTime
)

// String returns the display name for a time range.
func (t TimeRange) String() string {
	switch t {
	case TimeRange24Hours:
		return "24 Hours"
	case TimeRange7Days:
		return "7 Days"
	case TimeRange30Days:
		return "30 Days"
	case TimeRangeAllTime:
		return "All Time"
	default:
		return "Unknown"
	}
}

// Days returns the number of days in the range (0 = unlimited).
func (t TimeRange) Days() int {
	switch t {
	case TimeRange24Hours:
		return 1
	case TimeRange7Days:
		return 7
	case TimeRange30Days:
		return 30
	case TimeRangeAllTime:
		return 0
	default:
		return 30
	}
}

// SwapRecord is one recorded account switch.
type SwapRecord struct {
	Timestamp   time.Time  `json:"timestamp"`
	FromAccount string     `json:"fromAccount"`
	ToAccount   string     `json:"toAccount"`
	Reason      SwapReason `json:"reason"`
}

// AccountHistoryStats aggregates recorded usage for one account over a range.
type AccountHistoryStats struct {
	FirstDataPoint     time.Time
	LastDataPoint      time.Time
	AccountID          string
	TimeRange          TimeRange
	DataPoints         int
	AvgSessionPercent  float64
	PeakSessionPercent float64
	AvgWeeklyPercent   float64
	PeakWeeklyPercent  float64
	SwapsFrom          int
	SwapsTo            int
}

// HasData reports whether any snapshots were recorded in the range.
func (a *AccountHistoryStats) HasData() bool {
	return a.DataPoints > 0
}

// Forecast estimates when a quota dimension will hit its cap, based on the
// recent burn rate.
type Forecast struct {
	PredictedAt    time.Time `json:"predictedAt"`
	DepletionAt    time.Time `json:"depletionAt,omitzero"`
	AccountID      string    `json:"accountId"`
	Limit          LimitType `json:"limit"`
	CurrentPercent float64   `json:"currentPercent"`
	RatePerHour    float64   `json:"ratePerHour"`
	WillDeplete    bool      `json:"willDeplete"`
	Confidence     string    `json:"confidence"`
}
