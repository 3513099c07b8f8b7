// Package events implements the frame cache's event bus: an in-process,
// best-effort publish/subscribe mechanism used to notify interested
// subscribers (typically the annotation UI) of cache hits, misses,
// frame changes, and pressure or performance warnings.
//
// Grounded on the Python original's
// interfaces/data_bus_interface.py (EventType enum, CacheEventPublisher
// convenience methods) for the event vocabulary, and on the teacher's
// internal/cluster/distributed_event_bus.go for the channel-based,
// non-blocking delivery shape — minus the gossip/cluster transport,
// which is out of scope for this in-process core.
package events

import (
	"sync"

	"framecache/internal/cache"
)

// Bus is an in-process event publisher. Publish never blocks: a
// subscriber whose channel is full simply misses the event, the same
// best-effort guarantee spec.md 4.6 requires for the get-path.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan cache.Event
	nextID      int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]chan cache.Event)}
}

// Subscribe registers a new subscriber with the given channel buffer size
// and returns a handle to use with Unsubscribe, plus the receive channel.
func (b *Bus) Subscribe(bufferSize int) (handle int, ch <-chan cache.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	c := make(chan cache.Event, bufferSize)
	b.subscribers[id] = c
	return id, c
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.subscribers[handle]; ok {
		delete(b.subscribers, handle)
		close(c)
	}
}

// Publish delivers event to every subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the caller.
func (b *Bus) Publish(event cache.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range b.subscribers {
		select {
		case c <- event:
		default:
		}
	}
}

// Close unsubscribes and closes channels for every current subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, c := range b.subscribers {
		delete(b.subscribers, id)
		close(c)
	}
}
