package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal leg type constants
const (
	LegEntry = "entry"
	LegExit  = "exit"
)

// JournalTrade is one structured leg of a journaled trade. Entry and exit
// legs of the same position share (symbol, instrument, side, strategy);
// premium differs between them and is deliberately not part of that key.
type JournalTrade struct {
	ID            int             `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Instrument    string          `json:"instrument,omitempty"`
	Side          string          `json:"side,omitempty"`
	Strategy      string          `json:"strategy,omitempty"`
	LegType       string          `json:"leg_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	Premium       decimal.Decimal `json:"premium,omitempty"`
	EntryDate     time.Time       `json:"entry_date"`
	DaysToExpiry  *int            `json:"days_to_expiry,omitempty"`
	ScreenshotURL string          `json:"screenshot_url,omitempty"`
	Emotion       string          `json:"emotion,omitempty"`
	ChecklistDone *bool           `json:"checklist_done,omitempty"`
	Impulse       bool            `json:"impulse,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// JournalNote is an unstructured journal entry whose content blob may embed
// trade data written by older app versions.
type JournalNote struct {
	ID        int                    `json:"id"`
	UserID    uuid.UUID              `json:"user_id"`
	NoteDate  time.Time              `json:"note_date"`
	Content   map[string]interface{} `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
}

// TradingPlan holds the user's growth-plan limits. Dollar thresholds win
// when set; otherwise percent-of-balance fields derive them.
type TradingPlan struct {
	ID             int             `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	AccountBalance decimal.Decimal `json:"account_balance"`
	DailyGoal      decimal.Decimal `json:"daily_goal,omitempty"`
	MaxLoss        decimal.Decimal `json:"max_loss,omitempty"`
	MaxGain        decimal.Decimal `json:"max_gain,omitempty"`
	DailyGoalPct   decimal.Decimal `json:"daily_goal_pct,omitempty"`
	MaxLossPct     decimal.Decimal `json:"max_loss_pct,omitempty"`
	MaxGainPct     decimal.Decimal `json:"max_gain_pct,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EffectiveDailyGoal resolves the dollar goal, deriving from percent of
// balance when no explicit dollar amount is set.
func (p *TradingPlan) EffectiveDailyGoal() decimal.Decimal {
	return resolveThreshold(p.DailyGoal, p.DailyGoalPct, p.AccountBalance)
}

// EffectiveMaxLoss resolves the dollar max-loss threshold.
func (p *TradingPlan) EffectiveMaxLoss() decimal.Decimal {
	return resolveThreshold(p.MaxLoss, p.MaxLossPct, p.AccountBalance)
}

// EffectiveMaxGain resolves the dollar max-gain threshold.
func (p *TradingPlan) EffectiveMaxGain() decimal.Decimal {
	return resolveThreshold(p.MaxGain, p.MaxGainPct, p.AccountBalance)
}

func resolveThreshold(dollars, pct, balance decimal.Decimal) decimal.Decimal {
	if dollars.IsPositive() {
		return dollars
	}
	if pct.IsPositive() && balance.IsPositive() {
		return balance.Mul(pct).Div(decimal.NewFromInt(100))
	}
	return decimal.Zero
}

// DaySnapshot is the precomputed expected-vs-realized snapshot some
// dashboards persist ahead of time. All fields are optional.
type DaySnapshot struct {
	ID           int              `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	SnapDate     time.Time        `json:"snap_date"`
	RealizedPnL  *decimal.Decimal `json:"realized_pnl,omitempty"`
	ExpectedPnL  *decimal.Decimal `json:"expected_pnl,omitempty"`
	TradeCount   *int             `json:"trade_count,omitempty"`
	ImpulseCount *int             `json:"impulse_count,omitempty"`
	GoalMet      *bool            `json:"goal_met,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
