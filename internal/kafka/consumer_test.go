package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/journal-alert-service/internal/models"
	"go.uber.org/zap"
)

// MockRepository implements RawTradeRepository for testing
type MockRepository struct {
	rawTrades      map[string]*models.RawTrade // key: orderID+source
	nextRawTradeID int

	CreateRawTradeCalls int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		rawTrades:      make(map[string]*models.RawTrade),
		nextRawTradeID: 1,
	}
}

func (m *MockRepository) CreateRawTrade(_ context.Context, t *models.RawTrade) error {
	m.CreateRawTradeCalls++
	t.ID = m.nextRawTradeID
	m.nextRawTradeID++
	m.rawTrades[t.OrderID+":"+t.Source] = t
	return nil
}

func (m *MockRepository) RawTradeExistsByOrderID(_ context.Context, orderID, source string) (bool, error) {
	_, exists := m.rawTrades[orderID+":"+source]
	return exists, nil
}

func newTestConsumer(repo RawTradeRepository) *Consumer {
	return &Consumer{repo: repo, log: zap.NewNop()}
}

func tradeEventMessage(t *testing.T, event models.TradeEvent) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.Data.OrderID), Value: raw}
}

func detectedEvent(userID uuid.UUID, orderID string) models.TradeEvent {
	executedAt := "2026-08-28T14:30:00Z"
	return models.TradeEvent{
		EventType: "TRADE_DETECTED",
		Source:    "robinhood",
		UserID:    userID.String(),
		Data: models.TradeEventData{
			OrderID:       orderID,
			Symbol:        "SLV",
			Side:          "buy",
			Instrument:    "stock",
			Quantity:      "3",
			AveragePrice:  "67.10",
			TotalNotional: "201.30",
			ExecutedAt:    &executedAt,
		},
		Timestamp: time.Now(),
	}
}

func TestProcessMessageStoresTrade(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)
	userID := uuid.New()

	msg := tradeEventMessage(t, detectedEvent(userID, "order-1"))
	err := consumer.processMessage(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, repo.rawTrades, 1)
	trade := repo.rawTrades["order-1:robinhood"]
	require.NotNil(t, trade)
	assert.Equal(t, userID, trade.UserID)
	assert.Equal(t, "SLV", trade.Symbol)
	assert.Equal(t, models.TradeSideBuy, trade.Side)
	assert.True(t, trade.Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, trade.TotalCost.Equal(decimal.RequireFromString("201.30")))
	assert.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), trade.ExecutedAt.UTC())
}

func TestProcessMessageIsIdempotent(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)
	msg := tradeEventMessage(t, detectedEvent(uuid.New(), "order-1"))

	require.NoError(t, consumer.processMessage(context.Background(), msg))
	require.NoError(t, consumer.processMessage(context.Background(), msg))

	assert.Equal(t, 1, repo.CreateRawTradeCalls, "duplicate order_id should be skipped")
}

func TestProcessMessageIgnoresOtherEventTypes(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)

	event := detectedEvent(uuid.New(), "order-1")
	event.EventType = "POSITION_SNAPSHOT"
	err := consumer.processMessage(context.Background(), tradeEventMessage(t, event))
	require.NoError(t, err)
	assert.Empty(t, repo.rawTrades)
}

func TestProcessMessageRejectsBadPayloads(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)

	err := consumer.processMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)

	event := detectedEvent(uuid.New(), "order-1")
	event.UserID = "not-a-uuid"
	err = consumer.processMessage(context.Background(), tradeEventMessage(t, event))
	assert.Error(t, err)

	event = detectedEvent(uuid.New(), "order-2")
	event.Data.Side = "hold"
	err = consumer.processMessage(context.Background(), tradeEventMessage(t, event))
	assert.Error(t, err)

	assert.Empty(t, repo.rawTrades)
}

func TestProcessMessageFallsBackOnNotional(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)

	event := detectedEvent(uuid.New(), "order-1")
	event.Data.TotalNotional = ""
	require.NoError(t, consumer.processMessage(context.Background(), tradeEventMessage(t, event)))

	trade := repo.rawTrades["order-1:robinhood"]
	require.NotNil(t, trade)
	// 3 * 67.10
	assert.True(t, trade.TotalCost.Equal(decimal.RequireFromString("201.30")))
}

func TestProcessMessageDefaultsInstrumentToStock(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)

	event := detectedEvent(uuid.New(), "order-1")
	event.Data.Instrument = ""
	require.NoError(t, consumer.processMessage(context.Background(), tradeEventMessage(t, event)))

	trade := repo.rawTrades["order-1:robinhood"]
	require.NotNil(t, trade)
	assert.Equal(t, models.InstrumentStock, trade.Instrument)
}

func TestParseEventTime(t *testing.T) {
	rfc := "2026-08-28T14:30:00Z"
	naive := "2026-08-28T14:30:00"
	garbage := "yesterday-ish"

	assert.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), parseEventTime(&rfc).UTC())
	assert.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), parseEventTime(&naive))

	// Unparseable and missing timestamps fall back to now.
	assert.WithinDuration(t, time.Now(), parseEventTime(&garbage), time.Minute)
	assert.WithinDuration(t, time.Now(), parseEventTime(nil), time.Minute)
}

func TestProcessMessageCapturesExpiry(t *testing.T) {
	repo := NewMockRepository()
	consumer := newTestConsumer(repo)

	event := detectedEvent(uuid.New(), "order-1")
	expires := "2026-08-28T20:00:00Z"
	event.Data.Instrument = "option"
	event.Data.ExpiresAt = &expires
	require.NoError(t, consumer.processMessage(context.Background(), tradeEventMessage(t, event)))

	trade := repo.rawTrades["order-1:robinhood"]
	require.NotNil(t, trade)
	require.NotNil(t, trade.ExpiresAt)
	assert.Equal(t, time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC), trade.ExpiresAt.UTC())
	assert.Equal(t, "option", trade.Instrument)
}
