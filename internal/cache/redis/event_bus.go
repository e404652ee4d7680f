package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alta-labs/wagerd/internal/domain"
)

// eventChannel is the Pub/Sub channel committed registry events fan out on,
// so replicas and external consumers see transitions from every node.
const eventChannel = "wagerd:events"

// EventBus relays committed events over Redis Pub/Sub. It is a
// domain.EventSink on the publishing side; Subscribe feeds the websocket hub
// on the consuming side.
type EventBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{rdb: c.Underlying(), logger: logger}
}

// Publish implements domain.EventSink. Failures are logged, not surfaced;
// the transition has already committed.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("event marshal failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := b.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		b.logger.Error("event publish failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe returns a channel of events published by any replica. The
// subscription closes when the context is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", eventChannel, err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("event decode failed", slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ domain.EventSink = (*EventBus)(nil)
