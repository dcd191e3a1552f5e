package saver

import "sync"

// PauseGate mirrors the host application's foreground state. Producers
// read it to decide whether to warn that saving continues in the
// background; the worker keeps saving either way.
//
// The zero value is a running (not paused) gate.
type PauseGate struct {
	mu      sync.Mutex
	paused  bool
	changed chan struct{}
}

// NewPauseGate returns a gate in the given state. A host that has not yet
// been resumed should start paused.
func NewPauseGate(paused bool) *PauseGate {
	return &PauseGate{paused: paused}
}

// Set records the host state.
func (g *PauseGate) Set(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused == paused {
		return
	}
	g.paused = paused
	if g.changed != nil {
		close(g.changed)
		g.changed = nil
	}
}

// Paused reports whether the host is backgrounded.
func (g *PauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Watch returns a channel that is closed on the next state change.
func (g *PauseGate) Watch() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.changed == nil {
		g.changed = make(chan struct{})
	}
	return g.changed
}
