// Package bus provides the in-process publish/subscribe channel the engine
// and UI-facing surfaces use to signal each other, plus an optional Redis
// bridge that relays signals across instances.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known topics.
const (
	// TopicRunNow wakes the engine for an immediate pass.
	TopicRunNow = "engine.run_now"
	// TopicForcePull tells notification consumers to re-read events now
	// instead of waiting for their own poll interval.
	TopicForcePull = "alerts.force_pull"
)

// Message is one signal on the bus.
type Message struct {
	Topic  string    `json:"topic"`
	UserID uuid.UUID `json:"user_id,omitempty"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// Subscription is one subscriber's feed. Close releases it; delivery to a
// closed or full subscription is dropped, never blocked on.
type Subscription struct {
	C      <-chan Message
	ch     chan Message
	cancel func()
	once   sync.Once
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Bus is an in-process topic bus. The zero value is not usable; use New.
type Bus struct {
	origin string

	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool
}

// New creates a Bus. The origin id tags published messages so a Redis
// bridge can tell its own traffic from remote traffic.
func New() *Bus {
	return &Bus{
		origin: uuid.NewString(),
		subs:   map[string][]*Subscription{},
	}
}

// Origin returns this bus's origin id.
func (b *Bus) Origin() string { return b.origin }

// Subscribe registers a subscriber for one topic. buffer bounds how many
// undelivered messages are held before further ones are dropped.
func (b *Bus) Subscribe(topic string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Message, buffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.cancel = func() { b.unsubscribe(topic, sub) }

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

func (b *Bus) unsubscribe(topic string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		// Close already drained the registry and closed every channel.
		return
	}
	subs := b.subs[topic]
	for i, s := range subs {
		if s != sub {
			continue
		}
		b.subs[topic] = append(subs[:i], subs[i+1:]...)
		close(sub.ch)
		return
	}
}

// Publish delivers msg to every current subscriber of its topic. Slow
// subscribers miss messages rather than stall the publisher.
func (b *Bus) Publish(_ context.Context, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("message topic required")
	}
	if msg.Origin == "" {
		msg.Origin = b.origin
	}
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}
	for _, sub := range b.subs[msg.Topic] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Close drops all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
}
