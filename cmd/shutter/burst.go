package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/shutter/pkg/shutter/config"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
	"github.com/jamesainslie/shutter/pkg/shutter/saver"
	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

var burstCmd = &cobra.Command{
	Use:   "burst",
	Short: "Simulate a capture burst",
	Long: `Submit a burst of synthetic captures as fast as possible and report how
often the camera would have been made to wait for the saver.

Images are written to a temporary directory that is removed afterwards
unless --keep is given.

Examples:
  shutter burst -n 30                 # 30 single JPEG captures
  shutter burst -n 10 --raw           # 10 RAW+JPEG captures
  shutter burst -n 5 --images 4       # 5 four-frame bursts
  shutter --small burst --latency 50ms`,
	RunE: runBurst,
}

func init() {
	burstCmd.Flags().IntP("count", "n", 10, "number of captures")
	burstCmd.Flags().Bool("raw", false, "pair every capture with a RAW request")
	burstCmd.Flags().Int("images", 1, "encoded images per capture")
	burstCmd.Flags().String("size", "512KiB", "size of each synthetic image")
	burstCmd.Flags().Duration("latency", 20*time.Millisecond, "extra time per save")
	burstCmd.Flags().Bool("keep", false, "keep the saved images")
	rootCmd.AddCommand(burstCmd)
}

// burstOptions describes one simulated burst.
type burstOptions struct {
	Count   int
	Raw     bool
	Images  int
	Size    int
	Latency time.Duration
}

// burstReport summarises a burst.
type burstReport struct {
	Requests    int
	Blocked     int
	Waited      time.Duration
	PeakPending int
	Saved       int64
	Failed      int64
	Bytes       int64
	Elapsed     time.Duration
}

func runBurst(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("%v", err)
		return err
	}

	var opts burstOptions
	opts.Count, _ = cmd.Flags().GetInt("count")
	opts.Raw, _ = cmd.Flags().GetBool("raw")
	opts.Images, _ = cmd.Flags().GetInt("images")
	opts.Latency, _ = cmd.Flags().GetDuration("latency")
	sizeStr, _ := cmd.Flags().GetString("size")
	size, err := humanize.ParseBytes(sizeStr)
	if err != nil {
		return fmt.Errorf("invalid --size %q: %w", sizeStr, err)
	}
	opts.Size = int(size)

	keep, _ := cmd.Flags().GetBool("keep")
	if !keep {
		tmp, err := os.MkdirTemp("", "shutter-burst-*")
		if err != nil {
			return fmt.Errorf("creating temp directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		cfg.Output.Dir = filepath.Join(tmp, "out")
		cfg.Index.Path = filepath.Join(tmp, "index")
	}

	res, err := tuner.Detect()
	if err != nil {
		return fmt.Errorf("detecting resources: %w", err)
	}

	report, err := simulateBurst(cmd.Context(), cfg, res, opts)
	if err != nil {
		return err
	}

	printInfo("%s", titleStyle.Render("Burst"))
	printInfo("%s %d (%d blocked, waited %s)", labelStyle.Render("requests:"), report.Requests, report.Blocked, report.Waited.Round(time.Millisecond))
	printInfo("%s %d", labelStyle.Render("peak pending:"), report.PeakPending)
	printInfo("%s %d saved, %d failed, %s", labelStyle.Render("result:"), report.Saved, report.Failed, humanize.IBytes(uint64(report.Bytes)))
	printInfo("%s %s", labelStyle.Render("elapsed:"), report.Elapsed.Round(time.Millisecond))
	return nil
}

// simulateBurst submits opts.Count captures to a fresh pipeline and waits
// for all of them to be saved.
func simulateBurst(ctx context.Context, cfg *config.Config, res tuner.SystemResources, opts burstOptions) (*burstReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	slow := func(next saver.Processor) saver.Processor {
		return saver.ProcessorFunc(func(ctx context.Context, req *request.Request) error {
			if opts.Latency > 0 && !req.IsDummy() {
				time.Sleep(opts.Latency)
			}
			return next.Process(ctx, req)
		})
	}

	p, err := newPipeline(cfg, res, slow)
	if err != nil {
		return nil, err
	}
	if err := p.start(ctx); err != nil {
		_ = p.close(context.Background())
		return nil, err
	}

	report := &burstReport{}
	sub := p.events.Subscribe(64, true)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for ev := range sub.Events {
			report.PeakPending = max(report.PeakPending, ev.PendingReal)
		}
		return nil
	})

	g.Go(func() error {
		defer p.events.Unsubscribe(sub.ID)

		for i := 0; i < opts.Count; i++ {
			params := request.Params{
				CapturedAt: start.Add(time.Duration(i) * time.Second),
				Format:     cfg.Format(),
				Quality:    cfg.Output.Quality,
			}
			var reqs []*request.Request
			if opts.Raw {
				reqs = append(reqs, request.NewRaw(&request.RawImage{Data: synthetic(opts.Size)}, params))
			}
			images := make([][]byte, max(opts.Images, 1))
			for j := range images {
				images[j] = synthetic(opts.Size)
			}
			reqs = append(reqs, request.NewEncoded(request.ModeNormal, images, params))

			for _, req := range reqs {
				report.Requests++
				if p.queue.WouldBlock(req.Cost()) {
					report.Blocked++
				}
				t := time.Now()
				if err := p.queue.Enqueue(gctx, req); err != nil {
					return err
				}
				report.Waited += time.Since(t)
			}
		}
		return p.worker.Barrier(gctx)
	})

	runErr := g.Wait()
	closeErr := p.close(context.Background())
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}

	stats := p.worker.Stats()
	report.Saved = stats.Saved
	report.Failed = stats.Failed
	report.Bytes = stats.Bytes
	report.Elapsed = time.Since(start)
	return report, nil
}

func synthetic(n int) []byte {
	b := make([]byte, max(n, 1))
	_, _ = rand.Read(b)
	return b
}
