// Package events implements the broker's fan-out bus: a bounded
// broadcast channel to which every active subscriber session attaches
// its own receiver.
package events

import (
	"sync"

	"github.com/cuemby/warrenbroker/pkg/types"
)

// busCapacity bounds how many in-flight broadcasts a subscriber can lag
// behind before the oldest are dropped. Snapshot-on-nudge (pkg/session)
// tolerates a lost nudge, so this is deliberately small.
const busCapacity = 100

// Subscriber is a channel that receives published events.
type Subscriber chan *types.Event

// Bus manages subscriber attachment and broadcast of published events.
// A single producer (the scheduler) broadcasts; each subscriber owns its
// receiver and only sees events broadcast after it attached.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
}

// NewBus creates an empty fan-out bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Subscriber]bool)}
}

// Subscribe attaches a fresh receiver and returns it.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, busCapacity)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe detaches sub. The scheduler is unaffected by a subscriber
// disconnecting.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish broadcasts event to every attached subscriber. A subscriber
// whose buffer is full has its oldest queued event discarded to make
// room, rather than blocking the scheduler; the snapshot-on-nudge design
// tolerates the loss.
func (b *Bus) Publish(event *types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
