package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument kind constants for open positions
const (
	InstrumentStock  = "stock"
	InstrumentOption = "option"
)

// OpenPosition is a currently-open position as derived by the aggregator,
// either from the raw trade ledger or from journal legs.
type OpenPosition struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Instrument string          `json:"instrument,omitempty"`
	Side       string          `json:"side,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryDate  *time.Time      `json:"entry_date,omitempty"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Source     string          `json:"source,omitempty"`
}

// ExpiresOn reports whether the position's resolved expiry falls on date.
func (p *OpenPosition) ExpiresOn(date time.Time) bool {
	if p.ExpiryDate == nil {
		return false
	}
	y1, m1, d1 := p.ExpiryDate.Date()
	y2, m2, d2 := date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DailyStats is the best-effort snapshot of one user's trading day. It is
// recomputed fresh on every evaluation pass and never persisted.
type DailyStats struct {
	Date               time.Time
	NetPnL             decimal.Decimal
	DailyGoal          decimal.Decimal
	MaxLoss            decimal.Decimal
	MaxGain            decimal.Decimal
	TradeCount         int
	ImpulseCount       int
	OpenPositions      []OpenPosition
	ExpiringToday      []OpenPosition
	MissingScreenshots int
	MissingEmotions    int
	MissingChecklist   int
	GoalMet            *bool
}

// OpenPositionCount returns the number of open positions.
func (s *DailyStats) OpenPositionCount() int {
	return len(s.OpenPositions)
}

// Excerpt returns the audit subset stored in event payloads.
func (s *DailyStats) Excerpt() *StatsExcerpt {
	return &StatsExcerpt{
		Date:          s.Date.Format("2006-01-02"),
		NetPnL:        s.NetPnL,
		DailyGoal:     s.DailyGoal,
		MaxLoss:       s.MaxLoss,
		MaxGain:       s.MaxGain,
		TradeCount:    s.TradeCount,
		ImpulseCount:  s.ImpulseCount,
		OpenPositions: len(s.OpenPositions),
		ExpiringToday: len(s.ExpiringToday),
	}
}

// StatsExcerpt is the compact stats snapshot embedded in event payloads.
type StatsExcerpt struct {
	Date          string          `json:"date"`
	NetPnL        decimal.Decimal `json:"net_pnl"`
	DailyGoal     decimal.Decimal `json:"daily_goal,omitempty"`
	MaxLoss       decimal.Decimal `json:"max_loss,omitempty"`
	MaxGain       decimal.Decimal `json:"max_gain,omitempty"`
	TradeCount    int             `json:"trade_count,omitempty"`
	ImpulseCount  int             `json:"impulse_count,omitempty"`
	OpenPositions int             `json:"open_positions,omitempty"`
	ExpiringToday int             `json:"expiring_today,omitempty"`
}
