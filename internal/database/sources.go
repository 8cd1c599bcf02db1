package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

// Candidate daily-stats tables in preference order. Both carry one jsonb
// row per user+date; trading_day_stats is the previous importer's table
// and sticks around until its rows are migrated.
const (
	StatsTableCurrent = "daily_stats"
	StatsTableLegacy  = "trading_day_stats"
)

var statsTables = map[string]bool{
	StatsTableCurrent: true,
	StatsTableLegacy:  true,
}

// DailyStatRow fetches the raw stat blob for user+date from one candidate
// table. Returns nil with no error when the row or the whole table is
// absent, so callers can fall through to the next source.
func (db *DB) DailyStatRow(ctx context.Context, table string, userID uuid.UUID, date time.Time) (map[string]interface{}, error) {
	if !statsTables[table] {
		return nil, fmt.Errorf("unknown stats table: %s", table)
	}
	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE user_id = $1 AND stat_date = $2`, table,
	)
	var blob []byte
	err := db.conn.QueryRowContext(ctx, query, userID, dateOnly(date)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if isUndefinedTable(err) || isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	data := map[string]interface{}{}
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return data, nil
}

// TradingPlan fetches the user's plan/limits record, nil when absent.
func (db *DB) TradingPlan(ctx context.Context, userID uuid.UUID) (*models.TradingPlan, error) {
	query := `
		SELECT id, user_id, account_balance, daily_goal, max_loss, max_gain,
		       daily_goal_pct, max_loss_pct, max_gain_pct, updated_at
		FROM trading_plans
		WHERE user_id = $1
	`
	var p models.TradingPlan
	var dailyGoal, maxLoss, maxGain, dailyGoalPct, maxLossPct, maxGainPct sql.NullString

	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.AccountBalance, &dailyGoal, &maxLoss, &maxGain,
		&dailyGoalPct, &maxLossPct, &maxGainPct, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if isUndefinedTable(err) || isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trading plan: %w", err)
	}

	p.DailyGoal = nullDecimal(dailyGoal)
	p.MaxLoss = nullDecimal(maxLoss)
	p.MaxGain = nullDecimal(maxGain)
	p.DailyGoalPct = nullDecimal(dailyGoalPct)
	p.MaxLossPct = nullDecimal(maxLossPct)
	p.MaxGainPct = nullDecimal(maxGainPct)
	return &p, nil
}

// DaySnapshot fetches the precomputed expected-vs-realized snapshot for
// user+date, nil when absent.
func (db *DB) DaySnapshot(ctx context.Context, userID uuid.UUID, date time.Time) (*models.DaySnapshot, error) {
	query := `
		SELECT id, user_id, snap_date, realized_pnl, expected_pnl,
		       trade_count, impulse_count, goal_met, created_at
		FROM day_snapshots
		WHERE user_id = $1 AND snap_date = $2
	`
	var s models.DaySnapshot
	var realized, expected sql.NullString
	var tradeCount, impulseCount sql.NullInt64
	var goalMet sql.NullBool

	err := db.conn.QueryRowContext(ctx, query, userID, dateOnly(date)).Scan(
		&s.ID, &s.UserID, &s.SnapDate, &realized, &expected,
		&tradeCount, &impulseCount, &goalMet, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if isUndefinedTable(err) || isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query day snapshot: %w", err)
	}

	if realized.Valid {
		d, err := decimal.NewFromString(realized.String)
		if err == nil {
			s.RealizedPnL = &d
		}
	}
	if expected.Valid {
		d, err := decimal.NewFromString(expected.String)
		if err == nil {
			s.ExpectedPnL = &d
		}
	}
	if tradeCount.Valid {
		n := int(tradeCount.Int64)
		s.TradeCount = &n
	}
	if impulseCount.Valid {
		n := int(impulseCount.Int64)
		s.ImpulseCount = &n
	}
	if goalMet.Valid {
		v := goalMet.Bool
		s.GoalMet = &v
	}
	return &s, nil
}

// JournalTrades retrieves a user's structured journal legs entered since
// the cutoff.
func (db *DB) JournalTrades(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.JournalTrade, error) {
	query := `
		SELECT id, user_id, symbol, instrument, side, strategy, leg_type,
		       quantity, premium, entry_date, days_to_expiry,
		       screenshot_url, emotion, checklist_done, impulse, created_at
		FROM journal_trades
		WHERE user_id = $1 AND entry_date >= $2
		ORDER BY entry_date ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID, dateOnly(since))
	if err != nil {
		if isUndefinedTable(err) || isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query journal trades: %w", err)
	}
	defer rows.Close()

	var legs []*models.JournalTrade
	for rows.Next() {
		var l models.JournalTrade
		var daysToExpiry sql.NullInt64
		var checklistDone sql.NullBool
		err := rows.Scan(
			&l.ID, &l.UserID, &l.Symbol, &l.Instrument, &l.Side, &l.Strategy, &l.LegType,
			&l.Quantity, &l.Premium, &l.EntryDate, &daysToExpiry,
			&l.ScreenshotURL, &l.Emotion, &checklistDone, &l.Impulse, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal trade: %w", err)
		}
		if daysToExpiry.Valid {
			n := int(daysToExpiry.Int64)
			l.DaysToExpiry = &n
		}
		if checklistDone.Valid {
			v := checklistDone.Bool
			l.ChecklistDone = &v
		}
		legs = append(legs, &l)
	}
	return legs, rows.Err()
}

// JournalNotes retrieves a user's unstructured notes entered since the
// cutoff. Older app versions embedded trade data in the content blob.
func (db *DB) JournalNotes(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.JournalNote, error) {
	query := `
		SELECT id, user_id, note_date, content, created_at
		FROM journal_notes
		WHERE user_id = $1 AND note_date >= $2
		ORDER BY note_date ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID, dateOnly(since))
	if err != nil {
		if isUndefinedTable(err) || isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query journal notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.JournalNote
	for rows.Next() {
		var n models.JournalNote
		var blob []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.NoteDate, &blob, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal note: %w", err)
		}
		n.Content = map[string]interface{}{}
		if len(blob) > 0 {
			// A malformed blob just yields an empty note.
			_ = json.Unmarshal(blob, &n.Content)
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

// ActiveUsers returns the distinct user ids the engine iterates per pass:
// anyone with an alert rule or a trading plan.
func (db *DB) ActiveUsers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id FROM alert_rules
		UNION
		SELECT user_id FROM trading_plans
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan active user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func nullDecimal(ns sql.NullString) decimal.Decimal {
	if !ns.Valid {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}
