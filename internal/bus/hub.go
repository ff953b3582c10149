// Package bus fans state out to watchers. Each topic remembers its latest
// value; a subscriber that reads slowly skips intermediate values but always
// ends on the newest one.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

// Hub is a set of topics carrying values of type T. The zero value is not
// usable; call NewHub.
type Hub[T any] struct {
	mu     sync.Mutex
	topics map[string]*topic[T]
	closed bool
}

type topic[T any] struct {
	latest T
	has    bool
	subs   map[uuid.UUID]*Subscription[T]
}

// Subscription receives the values published to one topic.
type Subscription[T any] struct {
	ID    uuid.UUID
	Topic string

	hub *Hub[T]
	ch  chan T
}

// NewHub returns an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{topics: make(map[string]*topic[T])}
}

// Subscribe starts watching name. If the topic already has a value it is
// delivered immediately. Subscribing to a closed hub returns a closed
// subscription.
func (h *Hub[T]) Subscribe(name string) *Subscription[T] {
	sub := &Subscription[T]{
		ID:    uuid.New(),
		Topic: name,
		hub:   h,
		ch:    make(chan T, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	t := h.topic(name)
	t.subs[sub.ID] = sub
	if t.has {
		sub.ch <- t.latest
	}
	return sub
}

// Publish records v as the latest value of name and offers it to every
// subscriber, replacing any value they have not read yet.
func (h *Hub[T]) Publish(name string, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	t := h.topic(name)
	t.latest = v
	t.has = true
	for _, sub := range t.subs {
		sub.offer(v)
	}
}

// Latest returns the last value published to name.
func (h *Hub[T]) Latest(name string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[name]
	if !ok || !t.has {
		var zero T
		return zero, false
	}
	return t.latest, true
}

// Watched reports whether name has at least one subscriber.
func (h *Hub[T]) Watched(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[name]
	return ok && len(t.subs) > 0
}

// Subscribers returns the number of subscribers of name.
func (h *Hub[T]) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		return len(t.subs)
	}
	return 0
}

// Topics returns the names of topics that currently have subscribers.
func (h *Hub[T]) Topics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.topics))
	for name, t := range h.topics {
		if len(t.subs) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// Close ends every subscription. Later publishes are dropped.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, t := range h.topics {
		for id, sub := range t.subs {
			close(sub.ch)
			delete(t.subs, id)
		}
	}
}

// topic returns the named topic, creating it. Caller holds h.mu.
func (h *Hub[T]) topic(name string) *topic[T] {
	t, ok := h.topics[name]
	if !ok {
		t = &topic[T]{subs: make(map[uuid.UUID]*Subscription[T])}
		h.topics[name] = t
	}
	return t
}

// C returns the channel of values. It is closed when the subscription or
// the hub is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close stops the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[s.Topic]
	if !ok {
		return
	}
	if _, live := t.subs[s.ID]; !live {
		return
	}
	delete(t.subs, s.ID)
	close(s.ch)
	if len(t.subs) == 0 && !t.has {
		delete(h.topics, s.Topic)
	}
}

// offer replaces any unread value with v. Caller holds the hub lock, so
// there is never a second sender.
func (s *Subscription[T]) offer(v T) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}
