// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package destination contains the sinks and wrappers decoded events can be
// sent to.
package destination

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
	"storj.io/ekeyd/utils"
)

var mon = monkit.Package()

const (
	defaultQueueSize     = 1000
	defaultBatchSize     = 100
	defaultFlushInterval = 15 * time.Second
)

// BatchQueue collects events and hands them to the target in batches.
type BatchQueue struct {
	batchThreshold int
	flushInterval  time.Duration
	submitQueue    chan *ekeyd.Event
	target         ekeyd.Destination
	events         []*ekeyd.Event
}

var _ ekeyd.Destination = &BatchQueue{}

// NewBatchQueue creates a BatchQueue. A batch is sent when it holds
// batchSize events or when flushInterval expired, whichever comes first.
// Events submitted while the queue is full are dropped.
func NewBatchQueue(target ekeyd.Destination, queueSize int, batchSize int, flushInterval time.Duration) *BatchQueue {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &BatchQueue{
		submitQueue:    make(chan *ekeyd.Event, queueSize),
		batchThreshold: batchSize,
		flushInterval:  flushInterval,
		target:         target,
	}
}

// Run implements Destination. Queued events are flushed when ctx is
// canceled.
func (c *BatchQueue) Run(ctx context.Context) {
	ticker := utils.NewJitteredTicker(c.flushInterval)

	// the target outlives ctx until the final batch was submitted.
	targetCtx, cancelTarget := context.WithCancel(context.WithoutCancel(ctx))
	var background errgroup.Group
	defer func() {
		cancelTarget()
		_ = background.Wait()
	}()
	background.Go(func() error {
		c.target.Run(targetCtx)
		return nil
	})
	background.Go(func() error {
		ticker.Run(ctx)
		return nil
	})

	send := func() {
		if len(c.events) == 0 {
			return
		}
		batch := c.events
		c.events = nil
		mon.IntVal("batch_size").Observe(int64(len(batch)))
		c.target.Submit(batch...)
	}

	for {
		select {
		case ev := <-c.submitQueue:
			if c.add(ev) {
				send()
			}
		case <-ticker.C:
			send()
		case <-ctx.Done():
			left := len(c.submitQueue)
			for i := 0; i < left; i++ {
				if c.add(<-c.submitQueue) {
					send()
				}
			}
			send()
			return
		}
	}
}

func (c *BatchQueue) add(ev *ekeyd.Event) (full bool) {
	c.events = append(c.events, ev)
	return len(c.events) >= c.batchThreshold
}

// Submit implements Destination.
func (c *BatchQueue) Submit(events ...*ekeyd.Event) {
	for _, e := range events {
		select {
		case c.submitQueue <- e:
		default:
			mon.Counter("dropped_events").Inc(1)
		}
	}
}
