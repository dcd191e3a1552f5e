package saver

import (
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("saver already started")

	// ErrPanic wraps a panic recovered from a processor.
	ErrPanic = errors.New("processor panicked")

	// ErrDiscarded is returned by Barrier when its marker was dropped by
	// Discard before the worker reached it.
	ErrDiscarded = errors.New("barrier discarded")
)

// ProcessingError records a failed save. The worker keeps running after
// a failure; the error is surfaced through Failures and the OnFailure hook.
type ProcessingError struct {
	RequestID string
	Kind      request.Kind
	Time      time.Time
	Err       error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("saving %s request %s: %v", e.Kind, e.RequestID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}
