package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/logger"
)

// EventBus fans session events out to every instance over one pub/sub channel. Each instance
// runs a forwarder that hands received events to its local hub.
type EventBus struct {
	log     *logger.Logger
	client  *redis.Client
	channel string
}

type wireEvent struct {
	Type          domain.EventType `json:"type"`
	Topic         string           `json:"topic"`
	ParticipantID string           `json:"participant_id,omitempty"`
	Payload       json.RawMessage  `json:"payload,omitempty"`
	At            time.Time        `json:"at"`
}

func NewEventBus(client *redis.Client, channel string, log *logger.Logger) *EventBus {
	if channel == "" {
		channel = "quiz:events"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EventBus{log: log.With("service", "RedisEventBus"), client: client, channel: channel}
}

func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls onEvent for every message until ctx ends.
// Payloads arrive as raw JSON and are forwarded verbatim.
func (b *EventBus) StartForwarder(ctx context.Context, onEvent func(domain.Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.client.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev wireEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad event payload", "error", err)
					continue
				}
				event := domain.Event{Type: ev.Type, Topic: ev.Topic, ParticipantID: ev.ParticipantID, At: ev.At}
				if len(ev.Payload) > 0 {
					event.Payload = ev.Payload
				}
				onEvent(event)
			}
		}
	}()
	return nil
}

func (b *EventBus) Close() error {
	return b.client.Close()
}
