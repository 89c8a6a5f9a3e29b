package app

import (
	"context"
	"sync"

	"quiz-live-service/internal/domain"
)

// Bus carries events to every instance's Hub. Publish must not block on slow observers.
type Bus interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Hub is the process-local registry of event observers, keyed by topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	// dropped is called whenever a slow subscriber loses its oldest event.
	dropped func()
}

type subscriber struct {
	ch            chan domain.Event
	participantID string
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*subscriber]struct{})}
}

// OnDrop registers a callback for dropped events.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	h.dropped = fn
	h.mu.Unlock()
}

// Subscribe returns a channel of events for topic. With a participantID, events targeted at
// other participants are filtered out; with none, every event of the topic is delivered.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(topic, participantID string) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, 8), participantID: participantID}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.topics[topic]; ok {
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub.ch)
			}
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Deliver fans an event out to the topic's subscribers. A full subscriber loses its oldest
// event instead of blocking the publisher.
func (h *Hub) Deliver(event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.topics[event.Topic] {
		if sub.participantID != "" && event.ParticipantID != "" && sub.participantID != event.ParticipantID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
				if h.dropped != nil {
					h.dropped()
				}
			default:
			}
			sub.ch <- event
		}
	}
}

// Subscribers reports the number of observers of a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// LocalBus delivers published events straight to a hub. It serves single-instance deployments.
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, event domain.Event) error {
	b.hub.Deliver(event)
	return nil
}
