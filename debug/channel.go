package debug

import (
	"sync"
	"time"

	"github.com/Bipboy/urql/stream"
)

// Channel is a per-client debug event bus. One channel is created per
// client and injected into every exchange factory; its lifecycle ends
// with the client's teardown. When nothing listens, dispatching is a
// no-op with no allocation.
type Channel struct {
	mu        sync.RWMutex
	listeners map[uint64]func(Event)
	nextID    uint64
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{listeners: make(map[uint64]func(Event))}
}

// Enabled reports whether any observer is currently listening.
func (c *Channel) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners) > 0
}

// Subscribe registers an observer. Events are delivered synchronously
// in emission order; the observer must not block.
func (c *Channel) Subscribe(fn func(Event)) *stream.Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return stream.NewSubscription(func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	})
}

// Dispatch publishes an event to all current listeners.
func (c *Channel) Dispatch(event Event) {
	c.mu.RLock()
	if len(c.listeners) == 0 {
		c.mu.RUnlock()
		return
	}
	snapshot := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		snapshot = append(snapshot, fn)
	}
	c.mu.RUnlock()

	for _, fn := range snapshot {
		fn(event)
	}
}

// ForSource returns a DispatchFn stamping Timestamp and the given
// source tag. The fast path when nothing listens allocates nothing.
func (c *Channel) ForSource(source string) DispatchFn {
	return func(event Event) {
		if !c.Enabled() {
			return
		}
		event.Source = source
		event.Timestamp = time.Now()
		c.Dispatch(event)
	}
}
