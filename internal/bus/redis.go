package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge relays local bus traffic to other instances through a Redis
// pub/sub channel and republishes remote traffic locally. This is what
// lets a force-pull emitted by one instance reach badge/toast consumers
// connected to another.
type RedisBridge struct {
	local   *Bus
	rdb     *goredis.Client
	channel string
	log     *zap.Logger
	topics  []string
}

// NewRedisBridge connects to Redis and verifies the connection.
func NewRedisBridge(local *Bus, addr, channel string, log *zap.Logger) (*RedisBridge, error) {
	if channel == "" {
		channel = "journal-alerts"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBridge{
		local:   local,
		rdb:     rdb,
		channel: channel,
		log:     log,
		topics:  []string{TopicRunNow, TopicForcePull},
	}, nil
}

// Start relays in both directions until ctx is cancelled.
func (b *RedisBridge) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	// Remote → local.
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("bad bus payload from redis", zap.Error(err))
					continue
				}
				if msg.Origin == b.local.Origin() {
					continue
				}
				if err := b.local.Publish(ctx, msg); err != nil {
					return
				}
			}
		}
	}()

	// Local → remote.
	for _, topic := range b.topics {
		go b.forwardTopic(ctx, topic)
	}
	return nil
}

func (b *RedisBridge) forwardTopic(ctx context.Context, topic string) {
	sub := b.local.Subscribe(topic, 16)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if msg.Origin != b.local.Origin() {
				continue
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
				b.log.Warn("failed to relay bus message to redis", zap.Error(err))
			}
		}
	}
}

// Close releases the Redis connection.
func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
