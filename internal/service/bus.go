package service

import (
	"sync"

	"github.com/joeblew999/plat-cover/internal/mapstore"
)

// Event represents a session mutation.
type Event struct {
	Session  string // owning session ID
	Resource string // "sessions", "layers", "polygons", "session"
	Action   string // "created", "updated", "deleted"
	ID       string // resource ID
}

// EventBus is a fan-out pub/sub for session change events. Subscribers may
// restrict themselves to one session.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]string)}
}

// Publish sends an event to all matching subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, session := range b.subs {
		if session != "" && session != e.Session {
			continue
		}
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel receiving events of session, or of
// every session when session is "".
func (b *EventBus) Subscribe(session string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = session
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Notifier adapts the bus to the change hook of a map session.
func (b *EventBus) Notifier(session string) mapstore.Notifier {
	return func(c mapstore.Change) {
		b.Publish(Event{Session: session, Resource: c.Resource, Action: c.Action, ID: c.ID})
	}
}
