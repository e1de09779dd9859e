// Package events provides a process-wide fire-and-forget notification bus.
// Publishers never block on subscribers: a slow listener loses events rather
// than stalling the capture or delivery paths.
package events

import (
	"sync"
	"time"
)

// Well-known event types.
const (
	LocationQueued        = "location.queued"
	QueueProcessed        = "queue.processed"
	QueueCleared          = "queue.cleared"
	TrackingStarted       = "tracking.started"
	TrackingStopped       = "tracking.stopped"
	TrackingRestarted     = "tracking.restarted"
	TrackingRestartFailed = "tracking.restart_failed"
	GeofenceEntered       = "geofence.entered"
	GeofenceExited        = "geofence.exited"
	RouteEvicted          = "route.evicted"
)

// Event is a single notification.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Publisher is the narrow interface components depend on to emit events.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Bus fans events out to any number of subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	ch    chan Event
	types map[string]bool // nil means all types
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers the event to all matching subscribers without blocking.
// Events for subscribers with a full buffer are dropped.
func (b *Bus) Publish(eventType string, payload any) {
	ev := Event{Type: eventType, Timestamp: time.Now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.types != nil && !sub.types[eventType] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber buffer full, drop.
		}
	}
}

// Subscribe registers a listener for the given event types (all types when
// none are given). The returned cancel func must be called to release the
// subscription; the channel is closed on cancel.
func (b *Bus) Subscribe(types ...string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, 64)}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}
