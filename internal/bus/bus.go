package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with namespace
// filtering. Publishing never blocks: a subscriber with a full buffer
// misses the event. The bus is a notification channel for the rendering
// layer and diagnostics, never part of an ordering-critical path.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Drop event if subscriber is full (non-blocking).
			}
		}
	}
}

// Emit publishes an event of the given kind stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
