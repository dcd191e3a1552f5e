// Package saver runs the single background consumer that takes requests
// off the save queue in order and hands them to a processor.
package saver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/queue"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

// Processor saves one request. It may be slow and may fail; it is never
// called concurrently by a single worker.
type Processor interface {
	Process(ctx context.Context, req *request.Request) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, req *request.Request) error

// Process calls f(ctx, req).
func (f ProcessorFunc) Process(ctx context.Context, req *request.Request) error {
	return f(ctx, req)
}

// State is the lifecycle state of a Worker.
type State int32

// Worker states.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// defaultFailureHistory is how many failures Failures keeps.
const defaultFailureHistory = 32

// Options configures a Worker.
type Options struct {
	// Gate is the host lifecycle gate. Nil uses a running gate.
	Gate *PauseGate

	// OnFailure is called on the worker goroutine for every failed save.
	OnFailure func(*ProcessingError)

	// FailureHistory bounds the failures kept for Failures. Zero uses 32.
	FailureHistory int
}

// Stats counts what the worker has handled.
type Stats struct {
	Saved    int64
	Failed   int64
	Barriers int64
	Bytes    int64
}

// Worker consumes a save queue. Exactly one goroutine dequeues, so
// requests are processed in submission order.
type Worker struct {
	queue     *queue.Queue
	proc      Processor
	gate      *PauseGate
	onFailure func(*ProcessingError)

	state atomic.Int32
	done  chan struct{}

	saved    atomic.Int64
	failed   atomic.Int64
	barriers atomic.Int64
	bytes    atomic.Int64

	mu         sync.Mutex
	failures   []*ProcessingError
	maxHistory int
	waiters    map[string]chan error
}

// New creates a worker for q that saves with proc.
func New(q *queue.Queue, proc Processor, opts Options) *Worker {
	gate := opts.Gate
	if gate == nil {
		gate = &PauseGate{}
	}
	history := opts.FailureHistory
	if history <= 0 {
		history = defaultFailureHistory
	}

	return &Worker{
		queue:      q,
		proc:       proc,
		gate:       gate,
		onFailure:  opts.OnFailure,
		done:       make(chan struct{}),
		maxHistory: history,
		waiters:    make(map[string]chan error),
	}
}

// Start launches the consumer goroutine.
//
// Cancelling ctx does not abandon admitted work: the worker only exits
// once the queue is closed and drained (see Stop). ctx is passed to the
// processor for its values.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	go w.run(context.WithoutCancel(ctx))
	return nil
}

// Stop closes the queue to new work and waits until every admitted
// request has been processed. A worker that was never started is started
// so nothing already queued is dropped. If ctx ends first Stop returns
// ctx.Err() and the worker keeps draining in the background.
func (w *Worker) Stop(ctx context.Context) error {
	if w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		go w.run(context.WithoutCancel(ctx))
	}
	w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))

	logging.Get("saver").Info("draining save queue", "pending", w.queue.Snapshot().Pending)
	w.queue.Close()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker has stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Gate returns the pause gate consulted by the worker.
func (w *Worker) Gate() *PauseGate {
	return w.gate
}

// Stats returns the counters accumulated so far.
func (w *Worker) Stats() Stats {
	return Stats{
		Saved:    w.saved.Load(),
		Failed:   w.failed.Load(),
		Barriers: w.barriers.Load(),
		Bytes:    w.bytes.Load(),
	}
}

// Failures returns the most recent failures, oldest first.
func (w *Worker) Failures() []*ProcessingError {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*ProcessingError, len(w.failures))
	copy(out, w.failures)
	return out
}

// Barrier submits a dummy request and waits until the worker has consumed
// it, which means every request submitted before the call has been
// processed. It returns ErrDiscarded if Discard drops the marker first.
func (w *Worker) Barrier(ctx context.Context) error {
	req := request.NewDummy()
	reached := make(chan error, 1)

	w.mu.Lock()
	w.waiters[req.ID()] = reached
	w.mu.Unlock()

	if err := w.queue.Enqueue(ctx, req); err != nil {
		w.mu.Lock()
		delete(w.waiters, req.ID())
		w.mu.Unlock()
		return fmt.Errorf("submitting barrier: %w", err)
	}

	select {
	case err := <-reached:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard closes the queue and drops every request the worker has not
// picked up yet. Their payloads are released and pending barriers return
// ErrDiscarded. A save already in progress still completes. Discard
// returns the number of captures dropped.
func (w *Worker) Discard() int {
	dropped := w.queue.Discard()

	captures := 0
	for _, req := range dropped {
		if req.IsDummy() {
			w.wake(req, ErrDiscarded)
		} else {
			captures++
		}
		req.Release()
	}

	if captures > 0 {
		logging.Get("saver").Warn("discarded unsaved captures", "count", captures)
	}
	return captures
}

func (w *Worker) run(ctx context.Context) {
	log := logging.Get("saver")
	log.Debug("saver started")

	defer func() {
		w.state.Store(int32(StateStopped))
		close(w.done)
		stats := w.Stats()
		log.Info("saver stopped",
			"saved", stats.Saved, "failed", stats.Failed,
			"bytes", humanize.IBytes(uint64(stats.Bytes)))
	}()

	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			// Closed and drained.
			return
		}
		w.handle(ctx, req)
	}
}

func (w *Worker) handle(ctx context.Context, req *request.Request) {
	log := logging.Get("saver")

	if req.IsDummy() {
		w.barriers.Add(1)
	} else {
		if w.gate.Paused() {
			log.Debug("saving while host is paused", "id", req.ID())
		}

		size := req.PayloadSize()
		start := time.Now()
		if err := w.process(ctx, req); err != nil {
			w.fail(req, err)
		} else {
			w.saved.Add(1)
			w.bytes.Add(size)
			log.Debug("request saved",
				"id", req.ID(), "kind", req.Kind(), "images", req.ImageCount(),
				"size", humanize.IBytes(uint64(size)), "took", time.Since(start))
		}
	}

	if err := w.queue.Complete(req); err != nil {
		log.Error("completing request", "id", req.ID(), "error", err)
	}
	if req.IsDummy() {
		w.wake(req, nil)
	}
	req.Release()
}

// process runs the processor, turning a panic into an error so a single
// bad image cannot take the worker down.
func (w *Worker) process(ctx context.Context, req *request.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return w.proc.Process(ctx, req)
}

func (w *Worker) fail(req *request.Request, err error) {
	w.failed.Add(1)

	pe := &ProcessingError{
		RequestID: req.ID(),
		Kind:      req.Kind(),
		Time:      time.Now(),
		Err:       err,
	}
	logging.Get("saver").Error("save failed", "id", req.ID(), "kind", req.Kind(), "error", err)

	w.mu.Lock()
	w.failures = append(w.failures, pe)
	if len(w.failures) > w.maxHistory {
		w.failures = w.failures[len(w.failures)-w.maxHistory:]
	}
	w.mu.Unlock()

	if w.onFailure != nil {
		w.onFailure(pe)
	}
}

// wake hands err to the Barrier waiting on req, if any.
func (w *Worker) wake(req *request.Request, err error) {
	w.mu.Lock()
	ch, ok := w.waiters[req.ID()]
	delete(w.waiters, req.ID())
	w.mu.Unlock()

	if ok {
		ch <- err
	}
}
