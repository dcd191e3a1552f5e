// Package broadcaster fans queue count changes out to any number of
// observers, such as a status line or a capture button that dims while
// saves are pending.
package broadcaster

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultBuffer is the event buffer of a subscriber that asks for none.
const defaultBuffer = 16

// QueueEvent is one observed change of the save queue.
type QueueEvent struct {
	Pending     int
	PendingReal int
	Time        time.Time
}

// Idle reports whether no real save is outstanding.
func (e QueueEvent) Idle() bool {
	return e.PendingReal == 0
}

// Subscriber receives queue events.
type Subscriber struct {
	ID string

	// RealOnly subscribers only hear about changes of PendingReal, so
	// barriers passing through the queue are invisible to them.
	RealOnly bool

	Events chan QueueEvent

	lastReal int
}

// Broadcaster manages subscribers and distributes queue events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	last        QueueEvent
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber with the given event buffer. The most
// recent event, if any, is delivered immediately so a late subscriber
// starts from the current counts. Subscribe returns nil once the
// broadcaster is closed.
func (b *Broadcaster) Subscribe(buffer int, realOnly bool) *Subscriber {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:       uuid.New().String(),
		RealOnly: realOnly,
		Events:   make(chan QueueEvent, buffer),
		lastReal: b.last.PendingReal,
	}
	if !b.last.Time.IsZero() {
		sub.Events <- b.last
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// QueueChanged publishes new counts. It satisfies queue.Notifier.
func (b *Broadcaster) QueueChanged(pending, pendingReal int) {
	b.Publish(QueueEvent{Pending: pending, PendingReal: pendingReal, Time: time.Now()})
}

// Publish sends ev to every matching subscriber. A subscriber whose buffer
// is full loses its oldest event rather than the newest, so what it reads
// last is always current.
func (b *Broadcaster) Publish(ev QueueEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = ev

	for _, sub := range b.subscribers {
		if sub.RealOnly && sub.lastReal == ev.PendingReal {
			continue
		}
		sub.lastReal = ev.PendingReal
		deliver(sub.Events, ev)
	}
}

// Last returns the most recently published event.
func (b *Broadcaster) Last() QueueEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// deliver must be called with the broadcaster lock held; only publishers
// send, so after one receive there is room.
func deliver(ch chan QueueEvent, ev QueueEvent) {
	select {
	case ch <- ev:
		return
	default:
	}

	// Full: drop the oldest.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
