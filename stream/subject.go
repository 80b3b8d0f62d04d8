package stream

import (
	"sync"
)

// Subject is a hot multicast stream. Values pushed with Next are
// delivered to every listener subscribed at push time; listeners added
// during a push do not observe the value being pushed, and listeners
// removed during a push are guaranteed not to observe it.
type Subject[T any] struct {
	mu        sync.Mutex
	listeners map[uint64]*gate[T]
	order     []uint64
	nextID    uint64
	closed    bool
}

// NewSubject creates an empty subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		listeners: make(map[uint64]*gate[T]),
	}
}

// Next pushes a value to all current listeners. Pushing to a completed
// subject is a no-op. Listeners are invoked outside the subject's lock
// so re-entrant subscribe/unsubscribe/push is allowed.
func (s *Subject[T]) Next(value T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snapshot := make([]*gate[T], 0, len(s.order))
	for _, id := range s.order {
		if g, ok := s.listeners[id]; ok {
			snapshot = append(snapshot, g)
		}
	}
	s.mu.Unlock()

	for _, g := range snapshot {
		g.next(value)
	}
}

// Complete closes the subject and signals completion to all listeners.
// Further pushes and subscriptions are no-ops.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	snapshot := make([]*gate[T], 0, len(s.order))
	for _, id := range s.order {
		if g, ok := s.listeners[id]; ok {
			snapshot = append(snapshot, g)
		}
	}
	s.listeners = make(map[uint64]*gate[T])
	s.order = nil
	s.mu.Unlock()

	for _, g := range snapshot {
		g.complete()
	}
}

// Source returns the subject's hot source. Each subscription registers
// one listener; unsubscribing removes it and closes its delivery gate.
func (s *Subject[T]) Source() Source[T] {
	return func(obs Observer[T]) *Subscription {
		g := newGate(obs)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			g.complete()
			return NewSubscription(nil)
		}
		id := s.nextID
		s.nextID++
		s.listeners[id] = g
		s.order = append(s.order, id)
		s.mu.Unlock()

		return NewSubscription(func() {
			g.close()
			s.mu.Lock()
			delete(s.listeners, id)
			// Compact the order slice lazily; removal is infrequent
			// compared to pushes.
			for i, oid := range s.order {
				if oid == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// ListenerCount reports the number of active listeners.
func (s *Subject[T]) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
