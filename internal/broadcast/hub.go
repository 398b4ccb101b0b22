// Package broadcast fans state snapshots out to subscribers. Each
// subscriber holds at most one pending value; a slow reader only ever sees
// the newest snapshot.
package broadcast

import "sync"

// Hub distributes values of type T to subscribers.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// Subscription receives values published on a Hub.
type Subscription[T any] struct {
	C    <-chan T
	ch   chan T
	hub  *Hub[T]
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new subscriber. If the hub is already closed the
// returned subscription's channel is closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, 1)
	s := &Subscription[T]{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers v to every subscriber, replacing any value the
// subscriber has not read yet.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		select {
		case s.ch <- v:
		default:
			// drop the stale value, then deliver
			select {
			case <-s.ch:
			default:
			}
			s.ch <- v
		}
	}
}

// Len reports the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription. Further publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.once.Do(func() { close(s.ch) })
		delete(h.subs, s)
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; !ok {
		return
	}
	delete(s.hub.subs, s)
	s.once.Do(func() { close(s.ch) })
}
