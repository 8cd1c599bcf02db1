package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

// Producer publishes alert lifecycle notifications to Kafka for external
// channels (email digests, push relays) to consume.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishAlertTriggered publishes a notification for a newly created event.
func (p *Producer) PublishAlertTriggered(ctx context.Context, event *models.AlertEvent) error {
	return p.publish(ctx, notificationFor(models.AlertEventTriggered, event))
}

// PublishAlertResolved publishes a notification for an auto-resolved event.
func (p *Producer) PublishAlertResolved(ctx context.Context, event *models.AlertEvent) error {
	return p.publish(ctx, notificationFor(models.AlertEventResolved, event))
}

func notificationFor(eventType string, event *models.AlertEvent) models.AlertNotification {
	return models.AlertNotification{
		EventType:   eventType,
		UserID:      event.UserID.String(),
		RuleID:      event.RuleID.String(),
		EventID:     event.ID.String(),
		AlertDate:   event.AlertDate.Format("2006-01-02"),
		TriggerType: event.Payload.TriggerType,
		Severity:    event.Payload.Severity,
		Title:       event.Payload.Title,
		Message:     event.Payload.Message,
		Timestamp:   time.Now(),
	}
}

func (p *Producer) publish(ctx context.Context, n models.AlertNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// Key by user so one user's notifications stay ordered.
	msg := kafka.Message{
		Key:   []byte(n.UserID),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
