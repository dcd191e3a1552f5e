package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/shutter/pkg/shutter/config"
	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/spool"
	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

// drainTimeout bounds how long shutdown waits for pending saves.
const drainTimeout = 2 * time.Minute

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Save payloads dropped into the spool directory",
	Long: `Watch the spool directory and save every payload dropped there through
the background save queue. Files already present are picked up first.

The command runs until interrupted. On SIGINT or SIGTERM it stops taking
new payloads and waits for every admitted save to finish.

On Unix, SIGUSR1 marks the host as paused and SIGUSR2 as resumed; saving
continues either way.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("spool", "", "spool directory (overrides spool.dir)")
	rootCmd.AddCommand(runCmd)
}

// runRun wires the spool to the pipeline and blocks until a signal.
func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("%v", err)
		return err
	}
	if dir, _ := cmd.Flags().GetString("spool"); dir != "" {
		cfg.Spool.Dir = dir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs the spool and saver until ctx ends, then drains.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.Get("run")

	res, err := tuner.Detect()
	if err != nil {
		return fmt.Errorf("detecting resources: %w", err)
	}

	lock, err := spool.Acquire(cfg.Spool.Dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("releasing spool lock", "error", err)
		}
	}()

	p, err := newPipeline(cfg, res, nil)
	if err != nil {
		return err
	}

	settle, _ := cfg.SettleDuration() // validated
	sp, err := spool.New(cfg.Spool.Dir, p.queue, spool.Options{
		Extensions: cfg.Spool.Extensions,
		Settle:     settle,
		Gate:       p.gate,
		Format:     cfg.Format(),
		Quality:    cfg.Output.Quality,
	})
	if err != nil {
		_ = p.close(context.Background())
		return err
	}

	if err := p.start(ctx); err != nil {
		_ = sp.Close()
		_ = p.close(context.Background())
		return err
	}

	printInfo("Watching %s, saving to %s (capacity %d)", cfg.Spool.Dir, cfg.Output.Dir, p.plan.Capacity)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := sp.Scan(gctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("picked up spooled payloads", "count", n)
		}
		return sp.Run(gctx)
	})

	g.Go(func() error {
		watchPause(gctx, p.gate)
		return nil
	})

	sub := p.events.Subscribe(1, true)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-sub.Events:
				if !ok {
					return nil
				}
				if !getQuiet() {
					fmt.Printf("\r%s %s ", badge(ev, p.queue.Snapshot()), meter(p.queue.Snapshot(), 20))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return sp.Close()
	})

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	closeErr := p.close(drainCtx)

	stats := p.worker.Stats()
	ingested := sp.Stats()
	printInfo("\nSaved %d images (%s), %d failed; spooled %d encoded, %d raw",
		stats.Saved, humanize.IBytes(uint64(stats.Bytes)), stats.Failed, ingested.Encoded, ingested.Raw)

	if runErr != nil {
		return runErr
	}
	return closeErr
}
