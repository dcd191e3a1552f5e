//go:build !unix

package main

import (
	"context"

	"github.com/jamesainslie/shutter/pkg/shutter/saver"
)

// watchPause has no signal source on this platform.
func watchPause(ctx context.Context, _ *saver.PauseGate) {
	<-ctx.Done()
}
