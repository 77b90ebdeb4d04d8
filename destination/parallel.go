// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
)

// Parallel hands submitted batches to several worker destinations, each
// running in its own goroutine.
type Parallel struct {
	log      *zap.Logger
	queue    chan []*ekeyd.Event
	target   func() (ekeyd.Destination, error)
	workers  int
	teardown chan struct{}
}

var _ ekeyd.Destination = &Parallel{}

// NewParallel creates a destination with workers workers, each created by
// target.
func NewParallel(log *zap.Logger, target func() (ekeyd.Destination, error), workers int) *Parallel {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Parallel{
		log:      log,
		queue:    make(chan []*ekeyd.Event, workers),
		teardown: make(chan struct{}),
		target:   target,
		workers:  workers,
	}
}

// Submit implements Destination. It blocks while every worker is busy.
func (p *Parallel) Submit(events ...*ekeyd.Event) {
	select {
	case p.queue <- events:
	case <-p.teardown:
	}
}

// Run implements Destination. Batches queued when ctx is canceled are still
// handed to the workers before they stop.
func (p *Parallel) Run(ctx context.Context) {
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	var runners, feeders errgroup.Group
	for i := 0; i < p.workers; i++ {
		dest, err := p.target()
		if err != nil {
			p.log.Warn("worker destination could not be created", zap.Int("worker", i), zap.Error(err))
			continue
		}
		runners.Go(func() error {
			dest.Run(workerCtx)
			return nil
		})
		feeders.Go(func() error {
			for {
				select {
				case events := <-p.queue:
					dest.Submit(events...)
				case <-ctx.Done():
					for {
						select {
						case events := <-p.queue:
							dest.Submit(events...)
						default:
							return nil
						}
					}
				}
			}
		})
	}
	_ = feeders.Wait()
	close(p.teardown)
	cancelWorkers()
	_ = runners.Wait()
}
