// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package listener

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
)

// Node owns at most one listener worker and exposes the host lifecycle:
// Init, Start, Stop and WaitForStop.
type Node struct {
	log    *zap.Logger
	output ekeyd.Destination

	mu       sync.Mutex
	config   Config
	cancel   context.CancelFunc
	worker   *errgroup.Group
	listener *Listener

	active atomic.Int32
}

// NewNode creates a node submitting events to output.
func NewNode(log *zap.Logger, output ekeyd.Destination) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{log: log, output: output}
}

// Init sets the configuration used by the next Start.
func (n *Node) Init(config Config) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.config = config
}

// Start stops and joins the previous worker, if any, then spawns a new one.
// It returns without waiting for the socket to be bound.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.joinLocked()

	ctx, cancel := context.WithCancel(context.Background())
	listener := New(n.log, n.config, n.output)
	worker := &errgroup.Group{}
	worker.Go(func() error {
		n.active.Add(1)
		defer n.active.Add(-1)
		return listener.Run(ctx)
	})

	n.cancel = cancel
	n.worker = worker
	n.listener = listener
}

// Stop signals the worker to exit and returns immediately.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
}

// WaitForStop blocks until the current worker has exited.
func (n *Node) WaitForStop() error {
	n.mu.Lock()
	worker := n.worker
	n.mu.Unlock()
	if worker == nil {
		return nil
	}
	return worker.Wait()
}

// Listener returns the listener of the current worker, or nil before the
// first Start.
func (n *Node) Listener() *Listener {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listener
}

// Active returns the number of running workers. It is never more than one.
func (n *Node) Active() int { return int(n.active.Load()) }

func (n *Node) joinLocked() {
	if n.worker == nil {
		return
	}
	n.cancel()
	if err := n.worker.Wait(); err != nil {
		n.log.Error("listener exited", zap.Error(err))
	}
	n.worker, n.cancel, n.listener = nil, nil, nil
}
