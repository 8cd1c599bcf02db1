package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

// Store is the read-only slice of the database the aggregator consumes.
// Every method is best-effort: a missing table or row comes back as nil,
// not an error.
type Store interface {
	DailyStatRow(ctx context.Context, table string, userID uuid.UUID, date time.Time) (map[string]interface{}, error)
	TradingPlan(ctx context.Context, userID uuid.UUID) (*models.TradingPlan, error)
	DaySnapshot(ctx context.Context, userID uuid.UUID, date time.Time) (*models.DaySnapshot, error)
	LedgerTrades(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.RawTrade, error)
	JournalTrades(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.JournalTrade, error)
	JournalNotes(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.JournalNote, error)
}

// Candidate daily-stats tables in fixed preference order; first hit wins.
var statSourceOrder = []string{"daily_stats", "trading_day_stats"}

// Alias key lists for the stat blobs. Several naming generations coexist
// in stored rows, so extraction tries each alias in order.
var (
	netPnLKeys     = []string{"net_pnl", "netPnl", "net_profit", "daily_pnl", "pnl", "profit_loss", "net"}
	dailyGoalKeys  = []string{"daily_goal", "dailyGoal", "goal", "profit_target", "daily_target"}
	maxLossKeys    = []string{"max_loss", "maxLoss", "loss_limit", "max_daily_loss", "daily_max_loss"}
	maxGainKeys    = []string{"max_gain", "maxGain", "gain_limit", "max_daily_gain"}
	tradeCountKeys = []string{"trade_count", "trades", "num_trades", "total_trades"}
	impulseKeys    = []string{"impulse_count", "impulse_trades", "impulses"}
	goalMetKeys    = []string{"goal_met", "goalMet", "hit_goal"}
)

// Aggregator computes the best-effort daily snapshot from every available
// source. It never fails a computation: a broken source degrades its
// fields to zero defaults.
type Aggregator struct {
	store    Store
	log      *zap.Logger
	lookback time.Duration
}

// NewAggregator creates an Aggregator. The lookback bounds how far back
// ledger and journal scans reach when hunting for open positions; zero
// means the 90-day default.
func NewAggregator(store Store, log *zap.Logger, lookback time.Duration) *Aggregator {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	return &Aggregator{
		store:    store,
		log:      log,
		lookback: lookback,
	}
}

// ComputeDailyStats builds the snapshot for one user and date.
func (a *Aggregator) ComputeDailyStats(ctx context.Context, userID uuid.UUID, date time.Time) *models.DailyStats {
	stats := &models.DailyStats{Date: date}

	a.applyStatRow(ctx, userID, date, stats)
	a.applyPlan(ctx, userID, stats)
	a.applySnapshot(ctx, userID, date, stats)
	a.applyPositions(ctx, userID, date, stats)
	a.applyJournalHygiene(ctx, userID, date, stats)

	return stats
}

// applyStatRow takes the first candidate table with a row for user+date
// and extracts whichever alias keys are present.
func (a *Aggregator) applyStatRow(ctx context.Context, userID uuid.UUID, date time.Time, stats *models.DailyStats) {
	for _, table := range statSourceOrder {
		row, err := a.store.DailyStatRow(ctx, table, userID, date)
		if err != nil {
			a.log.Warn("daily stats source unavailable",
				zap.String("table", table), zap.String("user_id", userID.String()), zap.Error(err))
			continue
		}
		if row == nil {
			continue
		}

		stats.NetPnL = models.DecimalOrZero(firstValue(row, netPnLKeys...))
		stats.DailyGoal = models.DecimalOrZero(firstValue(row, dailyGoalKeys...))
		stats.MaxLoss = models.DecimalOrZero(firstValue(row, maxLossKeys...))
		stats.MaxGain = models.DecimalOrZero(firstValue(row, maxGainKeys...))
		stats.TradeCount = models.IntOrZero(firstValue(row, tradeCountKeys...))
		stats.ImpulseCount = models.IntOrZero(firstValue(row, impulseKeys...))
		if v, ok := models.BoolValue(firstValue(row, goalMetKeys...)); ok {
			stats.GoalMet = &v
		}
		return
	}
}

// applyPlan overlays plan-derived thresholds where no explicit dollar
// threshold came from the stat row.
func (a *Aggregator) applyPlan(ctx context.Context, userID uuid.UUID, stats *models.DailyStats) {
	plan, err := a.store.TradingPlan(ctx, userID)
	if err != nil {
		a.log.Warn("trading plan unavailable",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if plan == nil {
		return
	}
	if stats.DailyGoal.IsZero() {
		stats.DailyGoal = plan.EffectiveDailyGoal()
	}
	if stats.MaxLoss.IsZero() {
		stats.MaxLoss = plan.EffectiveMaxLoss()
	}
	if stats.MaxGain.IsZero() {
		stats.MaxGain = plan.EffectiveMaxGain()
	}
}

// applySnapshot fills fields still at their zero default from the
// precomputed snapshot. First source wins, never last write.
func (a *Aggregator) applySnapshot(ctx context.Context, userID uuid.UUID, date time.Time, stats *models.DailyStats) {
	snap, err := a.store.DaySnapshot(ctx, userID, date)
	if err != nil {
		a.log.Warn("day snapshot unavailable",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if snap == nil {
		return
	}
	if stats.NetPnL.IsZero() && snap.RealizedPnL != nil {
		stats.NetPnL = *snap.RealizedPnL
	}
	if stats.TradeCount == 0 && snap.TradeCount != nil {
		stats.TradeCount = *snap.TradeCount
	}
	if stats.ImpulseCount == 0 && snap.ImpulseCount != nil {
		stats.ImpulseCount = *snap.ImpulseCount
	}
	if stats.GoalMet == nil && snap.GoalMet != nil {
		v := *snap.GoalMet
		stats.GoalMet = &v
	}
}

// applyPositions reconciles the three open-position derivations: the raw
// trade ledger wins; the merged journal result is used only when the
// ledger shows nothing open.
func (a *Aggregator) applyPositions(ctx context.Context, userID uuid.UUID, date time.Time, stats *models.DailyStats) {
	since := date.Add(-a.lookback)

	var ledger []models.OpenPosition
	trades, err := a.store.LedgerTrades(ctx, userID, since)
	if err != nil {
		a.log.Warn("trade ledger unavailable",
			zap.String("user_id", userID.String()), zap.Error(err))
	} else {
		ledger = openFromLedger(trades)
		if stats.TradeCount == 0 {
			stats.TradeCount = countExecutedOn(trades, date)
		}
	}

	if len(ledger) > 0 {
		stats.OpenPositions = ledger
		stats.ExpiringToday = expiringOn(ledger, date)
		return
	}

	var legPositions, notePositions []models.OpenPosition
	legs, err := a.store.JournalTrades(ctx, userID, since)
	if err != nil {
		a.log.Warn("journal trades unavailable",
			zap.String("user_id", userID.String()), zap.Error(err))
	} else {
		legPositions = openFromJournalLegs(legs)
	}

	notes, err := a.store.JournalNotes(ctx, userID, since)
	if err != nil {
		a.log.Warn("journal notes unavailable",
			zap.String("user_id", userID.String()), zap.Error(err))
	} else {
		notePositions = openFromNotes(notes)
	}

	merged := mergeJournalPositions(legPositions, notePositions)
	stats.OpenPositions = merged
	stats.ExpiringToday = expiringOn(merged, date)
}

// applyJournalHygiene counts journal gaps for the day and backfills the
// impulse counter when no upstream source provided one.
func (a *Aggregator) applyJournalHygiene(ctx context.Context, userID uuid.UUID, date time.Time, stats *models.DailyStats) {
	legs, err := a.store.JournalTrades(ctx, userID, date)
	if err != nil {
		a.log.Warn("journal hygiene source unavailable",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	impulses := 0
	for _, leg := range legs {
		if !sameDay(leg.EntryDate, date) {
			continue
		}
		if leg.ScreenshotURL == "" {
			stats.MissingScreenshots++
		}
		if leg.Emotion == "" {
			stats.MissingEmotions++
		}
		if leg.ChecklistDone != nil && !*leg.ChecklistDone {
			stats.MissingChecklist++
		}
		if leg.Impulse {
			impulses++
		}
	}
	if stats.ImpulseCount == 0 {
		stats.ImpulseCount = impulses
	}
}

func countExecutedOn(trades []*models.RawTrade, date time.Time) int {
	n := 0
	for _, t := range trades {
		if sameDay(t.ExecutedAt, date) {
			n++
		}
	}
	return n
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
