package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade side constants
const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// Trade status strings seen in the ledger. Older importers wrote free-form
// values, so openness is inferred by the aggregator rather than trusted.
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// RawTrade is one row of the raw trade ledger, populated by the Kafka
// ingest consumer and by broker imports.
type RawTrade struct {
	ID           int              `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	OrderID      string           `json:"order_id"`
	Source       string           `json:"source"`
	Symbol       string           `json:"symbol"`
	Side         string           `json:"side"`
	Instrument   string           `json:"instrument,omitempty"`
	Strategy     string           `json:"strategy,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity"`
	RemainingQty *decimal.Decimal `json:"remaining_qty,omitempty"`
	Price        decimal.Decimal  `json:"price"`
	TotalCost    decimal.Decimal  `json:"total_cost"`
	Fees         decimal.Decimal  `json:"fees"`
	Status       string           `json:"status,omitempty"`
	IsOpen       *bool            `json:"is_open,omitempty"`
	ExecutedAt   time.Time        `json:"executed_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TradeEvent is the Kafka envelope for trade activity detected upstream.
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	UserID    string         `json:"user_id"`
	Data      TradeEventData `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// TradeEventData carries the broker-reported fill details. Numeric fields
// arrive as strings to avoid float drift in transit.
type TradeEventData struct {
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Instrument    string  `json:"instrument,omitempty"`
	Strategy      string  `json:"strategy,omitempty"`
	Quantity      string  `json:"quantity"`
	AveragePrice  string  `json:"average_price"`
	TotalNotional string  `json:"total_notional"`
	Fees          string  `json:"fees,omitempty"`
	ExecutedAt    *string `json:"executed_at,omitempty"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
}

// AlertNotification is the Kafka envelope published when the reconciler
// creates or auto-resolves an alert event.
type AlertNotification struct {
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	RuleID      string    `json:"rule_id"`
	EventID     string    `json:"event_id"`
	AlertDate   string    `json:"alert_date"`
	TriggerType string    `json:"trigger_type,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Alert notification event types
const (
	AlertEventTriggered = "ALERT_TRIGGERED"
	AlertEventResolved  = "ALERT_RESOLVED"
)

// Decimal helper for ledger rows: effective open quantity of a trade when a
// partial-close importer tracked remaining_qty.
func (t *RawTrade) EffectiveQuantity() decimal.Decimal {
	if t.RemainingQty != nil {
		return *t.RemainingQty
	}
	return t.Quantity
}
