// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
	"storj.io/ekeyd/archive"
	"storj.io/ekeyd/utils"
)

// Archive appends events to an archive.Store. Open files are closed every
// closeInterval so that finished hours are released.
type Archive struct {
	log           *zap.Logger
	store         *archive.Store
	closeInterval time.Duration
	queue         chan []*ekeyd.Event
}

var _ ekeyd.Destination = &Archive{}

// NewArchive creates a destination writing below base.
func NewArchive(log *zap.Logger, base string, closeInterval time.Duration) *Archive {
	if log == nil {
		log = zap.NewNop()
	}
	if closeInterval <= 0 {
		closeInterval = defaultFlushInterval
	}
	return &Archive{
		log:           log,
		store:         archive.NewStore(base),
		closeInterval: closeInterval,
		queue:         make(chan []*ekeyd.Event, defaultQueueSize),
	}
}

// Submit implements Destination.
func (a *Archive) Submit(events ...*ekeyd.Event) {
	select {
	case a.queue <- events:
	default:
		mon.Counter("dropped_events").Inc(int64(len(events)))
	}
}

// Run implements Destination.
func (a *Archive) Run(ctx context.Context) {
	ticker := utils.NewJitteredTicker(a.closeInterval)
	var background errgroup.Group
	background.Go(func() error {
		ticker.Run(ctx)
		return nil
	})
	defer func() {
		_ = background.Wait()
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing archive files", zap.Error(err))
		}
	}()

	for {
		select {
		case events := <-a.queue:
			a.append(events)
		case <-ticker.C:
			if err := a.store.DropAll(); err != nil {
				a.log.Warn("closing archive files", zap.Error(err))
			}
		case <-ctx.Done():
			left := len(a.queue)
			for i := 0; i < left; i++ {
				a.append(<-a.queue)
			}
			return
		}
	}
}

func (a *Archive) append(events []*ekeyd.Event) {
	if err := a.store.Append(events...); err != nil {
		mon.Counter("write_failures").Inc(1)
		a.log.Warn("could not archive events", zap.String("base", a.store.Base()), zap.Error(err))
	}
}
