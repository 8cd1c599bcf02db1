package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

// RawTradeRepository defines the interface for raw trade ledger writes.
type RawTradeRepository interface {
	CreateRawTrade(ctx context.Context, t *models.RawTrade) error
	RawTradeExistsByOrderID(ctx context.Context, orderID, source string) (bool, error)
}

// Consumer ingests TRADE_DETECTED events into the raw trade ledger. The
// ledger feeds the open-position side of the daily stats; evaluation
// itself stays on the polling engine, so a consumer outage only delays
// position freshness.
type Consumer struct {
	reader *kafka.Reader
	repo   RawTradeRepository
	log    *zap.Logger
}

// NewConsumer creates a new Kafka consumer for trade events
func NewConsumer(brokers []string, topic, groupID string, repo RawTradeRepository, log *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		repo:   repo,
		log:    log,
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("starting kafka consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				c.log.Error("error reading message", zap.Error(err))
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error("error processing message",
					zap.String("key", string(msg.Key)), zap.Error(err))
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal trade event: %w", err)
	}

	// Only process TRADE_DETECTED events
	if event.EventType != "TRADE_DETECTED" {
		c.log.Debug("ignoring event type", zap.String("event_type", event.EventType))
		return nil
	}

	// Check for duplicate (idempotency)
	exists, err := c.repo.RawTradeExistsByOrderID(ctx, event.Data.OrderID, event.Source)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate trade: %w", err)
	}
	if exists {
		c.log.Debug("trade already exists, skipping",
			zap.String("order_id", event.Data.OrderID), zap.String("source", event.Source))
		return nil
	}

	rawTrade, err := c.convertEventToRawTrade(event)
	if err != nil {
		return fmt.Errorf("failed to convert event to raw trade: %w", err)
	}

	if err := c.repo.CreateRawTrade(ctx, rawTrade); err != nil {
		return fmt.Errorf("failed to save raw trade: %w", err)
	}

	c.log.Info("saved raw trade",
		zap.String("side", rawTrade.Side),
		zap.String("quantity", rawTrade.Quantity.String()),
		zap.String("symbol", rawTrade.Symbol),
		zap.String("order_id", rawTrade.OrderID))

	return nil
}

// convertEventToRawTrade maps a TradeEvent to a RawTrade model
func (c *Consumer) convertEventToRawTrade(event models.TradeEvent) (*models.RawTrade, error) {
	data := event.Data

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id %s: %w", event.UserID, err)
	}

	// Parse quantity
	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %s: %w", data.Quantity, err)
	}

	// Parse price
	price, err := decimal.NewFromString(data.AveragePrice)
	if err != nil {
		return nil, fmt.Errorf("invalid price %s: %w", data.AveragePrice, err)
	}

	// Parse total cost
	totalCost, err := decimal.NewFromString(data.TotalNotional)
	if err != nil {
		// Fall back to quantity * price
		totalCost = quantity.Mul(price)
	}

	// Parse fees
	fees := decimal.Zero
	if data.Fees != "" {
		fees, _ = decimal.NewFromString(data.Fees)
	}

	// Convert side to uppercase
	side := strings.ToUpper(data.Side)
	if side != models.TradeSideBuy && side != models.TradeSideSell {
		return nil, fmt.Errorf("invalid trade side: %s", data.Side)
	}

	executedAt := parseEventTime(data.ExecutedAt)
	var expiresAt *time.Time
	if data.ExpiresAt != nil && *data.ExpiresAt != "" {
		t := parseEventTime(data.ExpiresAt)
		expiresAt = &t
	}

	// Detectors that predate the instrument field only report stock fills.
	instrument := strings.ToLower(data.Instrument)
	if instrument == "" {
		instrument = models.InstrumentStock
	}

	return &models.RawTrade{
		UserID:     userID,
		OrderID:    data.OrderID,
		Source:     event.Source,
		Symbol:     data.Symbol,
		Side:       side,
		Instrument: instrument,
		Strategy:   data.Strategy,
		Quantity:   quantity,
		Price:      price,
		TotalCost:  totalCost,
		Fees:       fees,
		ExecutedAt: executedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// parseEventTime handles both RFC3339 timestamps and the naive variant
// some upstream detectors still emit.
func parseEventTime(raw *string) time.Time {
	if raw == nil || *raw == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", *raw)
		if err != nil {
			return time.Now()
		}
	}
	return t
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
