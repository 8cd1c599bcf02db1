package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

const rawTradeColumns = `id, user_id, order_id, source, symbol, side, instrument, strategy,
	       quantity, remaining_qty, price, total_cost, fees, status, is_open,
	       executed_at, closed_at, expires_at, created_at`

// CreateRawTrade inserts a new raw trade record
func (db *DB) CreateRawTrade(ctx context.Context, t *models.RawTrade) error {
	query := `
		INSERT INTO raw_trades (
			user_id, order_id, source, symbol, side, instrument, strategy,
			quantity, remaining_qty, price, total_cost, fees, status, is_open,
			executed_at, closed_at, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query,
		t.UserID, t.OrderID, t.Source, t.Symbol, t.Side, t.Instrument, t.Strategy,
		t.Quantity, decimalPtr(t.RemainingQty), t.Price, t.TotalCost, t.Fees,
		nullString(t.Status), t.IsOpen,
		t.ExecutedAt, t.ClosedAt, t.ExpiresAt, now,
	).Scan(&t.ID)

	if err != nil {
		return fmt.Errorf("failed to create raw trade: %w", err)
	}
	t.CreatedAt = now
	return nil
}

// RawTradeExistsByOrderID checks if a raw trade with the given order_id and
// source already exists
func (db *DB) RawTradeExistsByOrderID(ctx context.Context, orderID, source string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM raw_trades WHERE order_id = $1 AND source = $2)`
	var exists bool
	err := db.conn.QueryRowContext(ctx, query, orderID, source).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check raw trade existence: %w", err)
	}
	return exists, nil
}

// LedgerTrades retrieves a user's recent and still-open ledger rows. The
// openness heuristics live in the aggregator; this just bounds the scan.
func (db *DB) LedgerTrades(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.RawTrade, error) {
	query := `
		SELECT ` + rawTradeColumns + `
		FROM raw_trades
		WHERE user_id = $1 AND (executed_at >= $2 OR closed_at IS NULL)
		ORDER BY executed_at ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID, since)
	if err != nil {
		if isUndefinedTable(err) || isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query raw trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.RawTrade
	for rows.Next() {
		t, err := scanRawTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanRawTrade(row rowScanner) (*models.RawTrade, error) {
	var t models.RawTrade
	var remainingQty, fees sql.NullString
	var status sql.NullString
	var isOpen sql.NullBool
	var closedAt, expiresAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.UserID, &t.OrderID, &t.Source, &t.Symbol, &t.Side, &t.Instrument, &t.Strategy,
		&t.Quantity, &remainingQty, &t.Price, &t.TotalCost, &fees, &status, &isOpen,
		&t.ExecutedAt, &closedAt, &expiresAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if remainingQty.Valid {
		q, err := decimal.NewFromString(remainingQty.String)
		if err == nil {
			t.RemainingQty = &q
		}
	}
	if fees.Valid {
		t.Fees, _ = decimal.NewFromString(fees.String)
	}
	if status.Valid {
		t.Status = status.String
	}
	if isOpen.Valid {
		v := isOpen.Bool
		t.IsOpen = &v
	}
	if closedAt.Valid {
		t.ClosedAt = &closedAt.Time
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	return &t, nil
}

func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
