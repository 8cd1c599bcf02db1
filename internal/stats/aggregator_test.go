package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

type fakeStore struct {
	statRows map[string]map[string]interface{} // keyed by table
	statErr  map[string]error
	plan     *models.TradingPlan
	snapshot *models.DaySnapshot
	ledger   []*models.RawTrade
	legs     []*models.JournalTrade
	notes    []*models.JournalNote

	ledgerErr error
}

func (f *fakeStore) DailyStatRow(_ context.Context, table string, _ uuid.UUID, _ time.Time) (map[string]interface{}, error) {
	if err := f.statErr[table]; err != nil {
		return nil, err
	}
	return f.statRows[table], nil
}

func (f *fakeStore) TradingPlan(context.Context, uuid.UUID) (*models.TradingPlan, error) {
	return f.plan, nil
}

func (f *fakeStore) DaySnapshot(context.Context, uuid.UUID, time.Time) (*models.DaySnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeStore) LedgerTrades(context.Context, uuid.UUID, time.Time) ([]*models.RawTrade, error) {
	if f.ledgerErr != nil {
		return nil, f.ledgerErr
	}
	return f.ledger, nil
}

func (f *fakeStore) JournalTrades(context.Context, uuid.UUID, time.Time) ([]*models.JournalTrade, error) {
	return f.legs, nil
}

func (f *fakeStore) JournalNotes(context.Context, uuid.UUID, time.Time) ([]*models.JournalNote, error) {
	return f.notes, nil
}

var testDate = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

func compute(t *testing.T, store *fakeStore) *models.DailyStats {
	t.Helper()
	a := NewAggregator(store, zap.NewNop(), 0)
	return a.ComputeDailyStats(context.Background(), uuid.New(), testDate)
}

func TestComputeFromStatRowAliases(t *testing.T) {
	store := &fakeStore{
		statRows: map[string]map[string]interface{}{
			"daily_stats": {
				"netPnl":        "512.50",
				"profit_target": float64(500),
				"loss_limit":    "300",
				"total_trades":  float64(4),
				"impulses":      float64(1),
				"hit_goal":      true,
			},
		},
	}

	stats := compute(t, store)
	assert.True(t, stats.NetPnL.Equal(d("512.50")))
	assert.True(t, stats.DailyGoal.Equal(d("500")))
	assert.True(t, stats.MaxLoss.Equal(d("300")))
	assert.Equal(t, 4, stats.TradeCount)
	assert.Equal(t, 1, stats.ImpulseCount)
	require.NotNil(t, stats.GoalMet)
	assert.True(t, *stats.GoalMet)
}

func TestComputeFirstSourceWins(t *testing.T) {
	store := &fakeStore{
		statRows: map[string]map[string]interface{}{
			"daily_stats":       {"net_pnl": "100"},
			"trading_day_stats": {"net_pnl": "999"},
		},
	}

	stats := compute(t, store)
	assert.True(t, stats.NetPnL.Equal(d("100")),
		"the current table wins over the legacy table")
}

func TestComputeFallsThroughToLegacyTable(t *testing.T) {
	store := &fakeStore{
		statRows: map[string]map[string]interface{}{
			"trading_day_stats": {"net_pnl": "250"},
		},
		statErr: map[string]error{"daily_stats": errors.New("boom")},
	}

	stats := compute(t, store)
	assert.True(t, stats.NetPnL.Equal(d("250")))
}

func TestComputePlanFillsMissingThresholds(t *testing.T) {
	store := &fakeStore{
		statRows: map[string]map[string]interface{}{
			"daily_stats": {"net_pnl": "100", "daily_goal": "400"},
		},
		plan: &models.TradingPlan{
			AccountBalance: d("10000"),
			DailyGoal:      d("999"),
			MaxLossPct:     d("3"),
		},
	}

	stats := compute(t, store)
	// The stat row's explicit goal stays; the plan only fills gaps.
	assert.True(t, stats.DailyGoal.Equal(d("400")))
	// Max loss derives from 3% of the 10k balance.
	assert.True(t, stats.MaxLoss.Equal(d("300")))
}

func TestComputeSnapshotFillsRemainingGaps(t *testing.T) {
	realized := d("42")
	tradeCount := 2
	store := &fakeStore{
		snapshot: &models.DaySnapshot{
			RealizedPnL: &realized,
			TradeCount:  &tradeCount,
		},
	}

	stats := compute(t, store)
	assert.True(t, stats.NetPnL.Equal(d("42")))
	assert.Equal(t, 2, stats.TradeCount)
}

func TestComputeLedgerPositionsPreferred(t *testing.T) {
	executed := testDate.Add(-48 * time.Hour)
	store := &fakeStore{
		ledger: []*models.RawTrade{
			{ID: 1, Symbol: "SLV", Quantity: d("3"), ExecutedAt: executed},
		},
		legs: []*models.JournalTrade{
			leg("SPY", models.LegEntry, "1", executed),
		},
	}

	stats := compute(t, store)
	require.Len(t, stats.OpenPositions, 1)
	assert.Equal(t, "trade-1", stats.OpenPositions[0].ID,
		"ledger positions win when the ledger has anything open")
}

func TestComputeJournalFallbackWhenLedgerNetsZero(t *testing.T) {
	executed := testDate.Add(-48 * time.Hour)
	closedAt := executed.Add(time.Hour)
	store := &fakeStore{
		ledger: []*models.RawTrade{
			{ID: 1, Symbol: "SLV", Quantity: d("3"), ExecutedAt: executed, ClosedAt: &closedAt},
		},
		legs: []*models.JournalTrade{
			leg("SPY", models.LegEntry, "2", executed),
		},
	}

	stats := compute(t, store)
	require.Len(t, stats.OpenPositions, 1)
	assert.Equal(t, "journal", stats.OpenPositions[0].Source)
}

func TestComputeExpiringTodayFromLedger(t *testing.T) {
	executed := testDate.Add(-24 * time.Hour)
	expires := testDate.Add(20 * time.Hour)
	store := &fakeStore{
		ledger: []*models.RawTrade{
			{ID: 1, Symbol: "SPY", Instrument: "option", Quantity: d("1"), ExecutedAt: executed, ExpiresAt: &expires},
		},
	}

	stats := compute(t, store)
	require.Len(t, stats.ExpiringToday, 1)
	assert.Equal(t, "trade-1", stats.ExpiringToday[0].ID)
}

func TestComputeTradeCountFromLedger(t *testing.T) {
	store := &fakeStore{
		ledger: []*models.RawTrade{
			{ID: 1, Symbol: "SLV", Quantity: d("1"), ExecutedAt: testDate.Add(14 * time.Hour)},
			{ID: 2, Symbol: "SLV", Quantity: d("1"), ExecutedAt: testDate.Add(15 * time.Hour)},
			{ID: 3, Symbol: "SLV", Quantity: d("1"), ExecutedAt: testDate.Add(-30 * time.Hour)},
		},
	}

	stats := compute(t, store)
	assert.Equal(t, 2, stats.TradeCount, "only today's executions count")
}

func TestComputeJournalHygiene(t *testing.T) {
	done := true
	notDone := false

	withHygiene := func(screenshot, emotion string, checklist *bool, impulse bool) *models.JournalTrade {
		l := leg("SPY", models.LegEntry, "1", testDate.Add(15*time.Hour))
		l.ScreenshotURL = screenshot
		l.Emotion = emotion
		l.ChecklistDone = checklist
		l.Impulse = impulse
		return l
	}

	yesterday := leg("QQQ", models.LegEntry, "1", testDate.Add(-10*time.Hour))

	store := &fakeStore{
		legs: []*models.JournalTrade{
			withHygiene("", "calm", &done, false),
			withHygiene("https://shots/1.png", "", &notDone, true),
			yesterday, // outside the day, not counted
		},
	}

	stats := compute(t, store)
	assert.Equal(t, 1, stats.MissingScreenshots)
	assert.Equal(t, 1, stats.MissingEmotions)
	assert.Equal(t, 1, stats.MissingChecklist)
	assert.Equal(t, 1, stats.ImpulseCount)
}

func TestComputeNeverFails(t *testing.T) {
	store := &fakeStore{
		statErr: map[string]error{
			"daily_stats":       errors.New("boom"),
			"trading_day_stats": errors.New("boom"),
		},
		ledgerErr: errors.New("boom"),
	}

	stats := compute(t, store)
	require.NotNil(t, stats)
	assert.True(t, stats.NetPnL.IsZero())
	assert.Empty(t, stats.OpenPositions)
}
