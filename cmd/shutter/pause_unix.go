//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/saver"
)

// watchPause maps SIGUSR1/SIGUSR2 to host pause/resume until ctx ends.
func watchPause(ctx context.Context, gate *saver.PauseGate) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			paused := sig == syscall.SIGUSR1
			gate.Set(paused)
			logging.Get("run").Info("host state changed", "paused", paused)
		}
	}
}
