package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/shutter/pkg/shutter/broadcaster"
	"github.com/jamesainslie/shutter/pkg/shutter/config"
	"github.com/jamesainslie/shutter/pkg/shutter/diskproc"
	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/mediastore"
	"github.com/jamesainslie/shutter/pkg/shutter/queue"
	"github.com/jamesainslie/shutter/pkg/shutter/saver"
	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

// pipeline is the assembled save path: queue, worker, processor and the
// observers around them.
type pipeline struct {
	plan   tuner.QueuePlan
	queue  *queue.Queue
	worker *saver.Worker
	gate   *saver.PauseGate
	events *broadcaster.Broadcaster
	store  *mediastore.Store
	proc   *diskproc.Processor
}

// newPipeline builds the save path for cfg. A nil wrap uses the disk
// processor as is; burst wraps it to add latency.
func newPipeline(cfg *config.Config, res tuner.SystemResources, wrap func(saver.Processor) saver.Processor) (*pipeline, error) {
	plan := tuner.PlanWithOverrides(res, cfg.Overrides())

	store, err := mediastore.Open(cfg.Index.Path)
	if err != nil {
		return nil, err
	}

	proc, err := diskproc.New(cfg.Output.Dir, diskproc.Options{Index: store})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	events := broadcaster.New()
	q := queue.New(queue.Config{
		Capacity: plan.Capacity,
		Slots:    plan.Slots,
		Notifier: events,
	})

	var p saver.Processor = proc
	if wrap != nil {
		p = wrap(p)
	}

	// The CLI is in the foreground until told otherwise.
	gate := saver.NewPauseGate(false)
	worker := saver.New(q, p, saver.Options{Gate: gate})

	logging.Get("pipeline").Info("pipeline ready",
		"tier", plan.Tier, "capacity", plan.Capacity, "slots", plan.Slots,
		"output", cfg.Output.Dir)

	return &pipeline{
		plan:   plan,
		queue:  q,
		worker: worker,
		gate:   gate,
		events: events,
		store:  store,
		proc:   proc,
	}, nil
}

// start launches the worker.
func (p *pipeline) start(ctx context.Context) error {
	return p.worker.Start(ctx)
}

// close drains the worker, then releases the observers and the index.
func (p *pipeline) close(ctx context.Context) error {
	var errs []error
	if err := p.worker.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("draining saver: %w", err))
	}
	p.events.Close()
	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing media index: %w", err))
	}
	return errors.Join(errs...)
}
