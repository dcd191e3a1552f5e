// Package queue implements the admission-controlled save queue that sits
// between the capture pipeline and the background saver.
//
// The queue bounds the total cost of requests that are waiting or being
// saved. A producer calling Enqueue is suspended while admitting its
// request would push the pending cost over capacity, or while every
// physical slot is taken. A request is always admitted into an idle queue
// whatever its cost, so a single oversized capture can never wedge the
// pipeline. Pending counters span a request's whole life: they grow on
// admission and shrink only when Complete is called after the save.
//
// Producers that have to wait are admitted in arrival order. A request at
// the head of the line holds back cheaper ones behind it, so an oversized
// capture is never starved by a stream of small ones.
//
// One mutex guards the FIFO and all counters. Waiters park on broadcast
// channels that are closed and replaced whenever the state they wait for
// may have changed, which lets every wait honour a context.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

var (
	// ErrClosed is returned by Enqueue once the queue stops accepting work,
	// and by Dequeue once the queue is closed and drained.
	ErrClosed = errors.New("save queue closed")

	// ErrWouldBlock is returned by TryEnqueue when admission would wait.
	ErrWouldBlock = errors.New("save queue full")

	// ErrAccounting reports a Complete without a matching Enqueue.
	ErrAccounting = errors.New("save queue accounting violation")

	// ErrNilRequest is returned when a nil request is submitted.
	ErrNilRequest = errors.New("nil request")
)

// Notifier is told about every change of the pending counts.
type Notifier interface {
	QueueChanged(pending, pendingReal int)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(pending, pendingReal int)

// QueueChanged calls f(pending, pendingReal).
func (f NotifierFunc) QueueChanged(pending, pendingReal int) {
	f(pending, pendingReal)
}

// Config configures a Queue.
type Config struct {
	// Capacity is the maximum pending cost admitted without waiting.
	// Values below 1 are raised to 1.
	Capacity int

	// Slots is the maximum number of requests waiting to be started.
	// Zero or negative means Capacity.
	Slots int

	// Notifier, if set, is called after every admission and completion.
	Notifier Notifier
}

// Snapshot is a point-in-time view of the queue counters.
type Snapshot struct {
	// Pending is the number of requests admitted and not yet completed.
	Pending int
	// PendingReal is Pending excluding dummy requests.
	PendingReal int
	// PendingCost is the summed cost of pending requests.
	PendingCost int
	// Queued is the number of requests not yet handed to the saver.
	Queued int
	// Waiting is the number of producers blocked in Enqueue.
	Waiting int

	Capacity int
	Slots    int
	Closed   bool
}

// Queue is the bounded, cost-weighted FIFO of save requests.
type Queue struct {
	mu       sync.Mutex
	capacity int
	slots    int
	items    []*request.Request
	closed   bool

	pendingCost int
	pending     int
	pendingReal int

	// waiting holds the tickets of blocked producers in arrival order.
	waiting    []uint64
	nextTicket uint64

	// Closed and replaced when the matching condition may have become true.
	spaceCh chan struct{}
	itemCh  chan struct{}
	idleCh  chan struct{}

	// version increases with every counter change. Notifications carrying
	// an older version than the last one delivered are dropped, so
	// observers never see the counts move backwards.
	version   uint64
	notifyMu  sync.Mutex
	delivered uint64
	notifier  Notifier
}

// New creates a queue with the given configuration.
func New(cfg Config) *Queue {
	capacity := max(cfg.Capacity, 1)
	slots := cfg.Slots
	if slots <= 0 {
		slots = capacity
	}

	return &Queue{
		capacity: capacity,
		slots:    slots,
		spaceCh:  make(chan struct{}),
		itemCh:   make(chan struct{}),
		idleCh:   make(chan struct{}),
		notifier: cfg.Notifier,
	}
}

// Capacity returns the configured cost capacity.
func (q *Queue) Capacity() int { return q.capacity }

// Slots returns the configured physical slot count.
func (q *Queue) Slots() int { return q.slots }

// Enqueue admits req, waiting while the queue is full. On success the
// queue owns the request's payload until the saver completes it.
//
// Enqueue returns ErrClosed if the queue is closed before or while
// waiting, and ctx.Err() if ctx ends while waiting. In both cases the
// request was not admitted.
func (q *Queue) Enqueue(ctx context.Context, req *request.Request) error {
	if req == nil {
		return ErrNilRequest
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if len(q.waiting) > 0 || !q.admits(req.Cost()) {
		ticket := q.nextTicket
		q.nextTicket++
		q.waiting = append(q.waiting, ticket)
		logging.Get("queue").Debug("waiting for capacity",
			"id", req.ID(), "cost", req.Cost(), "ahead", len(q.waiting)-1,
			"pending_cost", q.pendingCost, "capacity", q.capacity)

		for {
			if q.closed {
				q.leave(ticket)
				q.mu.Unlock()
				return ErrClosed
			}
			if q.waiting[0] == ticket && q.admits(req.Cost()) {
				break
			}
			if err := q.wait(ctx, q.spaceCh); err != nil {
				q.leave(ticket)
				q.mu.Unlock()
				return err
			}
		}
		q.leave(ticket)
	}

	q.push(req)
	ver, pending, pendingReal := q.mark()
	q.mu.Unlock()

	q.notify(ver, pending, pendingReal)
	return nil
}

// TryEnqueue admits req only if that can be done without waiting.
func (q *Queue) TryEnqueue(req *request.Request) error {
	if req == nil {
		return ErrNilRequest
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if len(q.waiting) > 0 || !q.admits(req.Cost()) {
		q.mu.Unlock()
		return ErrWouldBlock
	}

	q.push(req)
	ver, pending, pendingReal := q.mark()
	q.mu.Unlock()

	q.notify(ver, pending, pendingReal)
	return nil
}

// WouldBlock reports whether submitting a request of the given cost right
// now would have to wait. A closed queue never blocks; it refuses.
func (q *Queue) WouldBlock(cost int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && (len(q.waiting) > 0 || !q.admits(cost))
}

// Dequeue removes and returns the oldest request, waiting while the queue
// is empty. It returns ErrClosed once the queue is closed and drained, or
// ctx.Err() if ctx ends first.
func (q *Queue) Dequeue(ctx context.Context) (*request.Request, error) {
	q.mu.Lock()
	for len(q.items) == 0 {
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if err := q.wait(ctx, q.itemCh); err != nil {
			q.mu.Unlock()
			return nil, err
		}
	}

	req := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	// A physical slot opened up.
	q.signal(&q.spaceCh)
	q.mu.Unlock()

	return req, nil
}

// Complete releases the accounting held by req. It must be called exactly
// once per admitted request, after its save finished or failed.
func (q *Queue) Complete(req *request.Request) error {
	if req == nil {
		return ErrNilRequest
	}

	q.mu.Lock()
	realDelta := 0
	if !req.IsDummy() {
		realDelta = 1
	}
	if q.pending < 1 || q.pendingReal < realDelta || q.pendingCost < req.Cost() {
		snap := q.snapshotLocked()
		q.mu.Unlock()
		return fmt.Errorf("%w: completing %s (cost %d) with pending=%d real=%d cost=%d",
			ErrAccounting, req.ID(), req.Cost(), snap.Pending, snap.PendingReal, snap.PendingCost)
	}

	q.release(req)
	ver, pending, pendingReal := q.mark()
	q.mu.Unlock()

	q.notify(ver, pending, pendingReal)
	return nil
}

// Close stops admissions. Requests already admitted stay queued and are
// still returned by Dequeue. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.signal(&q.spaceCh)
	q.signal(&q.itemCh)
}

// Discard closes the queue and drops every request not yet handed to the
// saver, releasing their accounting. The dropped requests are returned so
// the caller can dispose of their payloads. Requests already dequeued
// remain pending until completed. A queue consumed by a saver.Worker is
// discarded through Worker.Discard so barrier waiters are woken.
func (q *Queue) Discard() []*request.Request {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.signal(&q.itemCh)
	}

	dropped := q.items
	q.items = nil
	for _, req := range dropped {
		q.release(req)
	}
	q.signal(&q.spaceCh)

	if len(dropped) == 0 {
		q.mu.Unlock()
		return nil
	}

	ver, pending, pendingReal := q.mark()
	q.mu.Unlock()

	q.notify(ver, pending, pendingReal)
	return dropped
}

// WaitIdle blocks until no request is pending or ctx ends.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending > 0 {
		if err := q.wait(ctx, q.idleCh); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current counters without blocking on the queue
// state.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() Snapshot {
	return Snapshot{
		Pending:     q.pending,
		PendingReal: q.pendingReal,
		PendingCost: q.pendingCost,
		Queued:      len(q.items),
		Waiting:     len(q.waiting),
		Capacity:    q.capacity,
		Slots:       q.slots,
		Closed:      q.closed,
	}
}

// admits reports whether a request of the given cost may be admitted now.
// An idle queue admits anything: waiting could only end when an in-flight
// request completes, and there is none. Must be called with q.mu held.
func (q *Queue) admits(cost int) bool {
	if q.pending == 0 {
		return true
	}
	return q.pendingCost+cost <= q.capacity && len(q.items) < q.slots
}

// leave removes ticket from the line of waiting producers and wakes the
// rest so the new head can check its turn. Must be called with q.mu held.
func (q *Queue) leave(ticket uint64) {
	for i, t := range q.waiting {
		if t == ticket {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	q.signal(&q.spaceCh)
}

// push must be called with q.mu held.
func (q *Queue) push(req *request.Request) {
	q.items = append(q.items, req)
	q.pendingCost += req.Cost()
	q.pending++
	if !req.IsDummy() {
		q.pendingReal++
	}
	q.signal(&q.itemCh)
}

// release must be called with q.mu held.
func (q *Queue) release(req *request.Request) {
	q.pendingCost -= req.Cost()
	q.pending--
	if !req.IsDummy() {
		q.pendingReal--
	}
	q.signal(&q.spaceCh)
	if q.pending == 0 {
		q.signal(&q.idleCh)
	}
}

// mark must be called with q.mu held.
func (q *Queue) mark() (uint64, int, int) {
	q.version++
	return q.version, q.pending, q.pendingReal
}

// signal wakes every goroutine parked on *ch. Must be called with q.mu held.
func (q *Queue) signal(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}

// wait releases q.mu until ch is signalled or ctx ends, then reacquires
// it. Must be called with q.mu held.
func (q *Queue) wait(ctx context.Context, ch <-chan struct{}) error {
	q.mu.Unlock()
	defer q.mu.Lock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) notify(version uint64, pending, pendingReal int) {
	if q.notifier == nil {
		return
	}

	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	if version <= q.delivered {
		return
	}
	q.delivered = version
	q.notifier.QueueChanged(pending, pendingReal)
}
