// Package events fans session lifecycle events out to subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/jscyril/soundbridge/api"
)

const bufferSize = 32

type subscription struct {
	ch     chan api.SessionEvent
	handle *api.Handle
	types  map[api.EventType]bool
}

func (s *subscription) wants(event api.SessionEvent) bool {
	if s.handle != nil && *s.handle != event.Handle {
		return false
	}
	return len(s.types) == 0 || s.types[event.Type]
}

// EventBus handles event distribution using channels. Publishing never
// blocks; events for a full subscriber are dropped and counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    []*subscription
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given.
func (b *EventBus) Subscribe(types ...api.EventType) <-chan api.SessionEvent {
	return b.subscribe(nil, types)
}

// SubscribeAll returns a channel receiving every event
func (b *EventBus) SubscribeAll() <-chan api.SessionEvent {
	return b.subscribe(nil, nil)
}

// SubscribeHandle returns a channel receiving events of one session
func (b *EventBus) SubscribeHandle(handle api.Handle, types ...api.EventType) <-chan api.SessionEvent {
	return b.subscribe(&handle, types)
}

func (b *EventBus) subscribe(handle *api.Handle, types []api.EventType) <-chan api.SessionEvent {
	sub := &subscription{
		ch:     make(chan api.SessionEvent, bufferSize),
		handle: handle,
	}
	if len(types) > 0 {
		sub.types = make(map[api.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Publish delivers event to every interested subscriber
func (b *EventBus) Publish(event api.SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped for full subscribers
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Unsubscribe removes a subscriber channel and closes it
func (b *EventBus) Unsubscribe(ch <-chan api.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.ch == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Close closes all subscriber channels. Later subscriptions are closed at once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
