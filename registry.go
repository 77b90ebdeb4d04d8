// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ekeyd

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Registry fans events out to every registered destination.
type Registry struct {
	destinations []Destination
}

var _ Destination = &Registry{}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// AddDestination adds a destination to the registry. Do not call
// AddDestination if Submit might be called concurrently. It is expected that
// AddDestination will be called at initialization time before any events.
func (r *Registry) AddDestination(destination Destination) {
	r.destinations = append(r.destinations, destination)
}

// Submit implements Destination.
func (r *Registry) Submit(events ...*Event) {
	for _, destination := range r.destinations {
		destination.Submit(events...)
	}
}

// Run implements Destination. It runs every destination and returns when all
// of them stopped.
func (r *Registry) Run(ctx context.Context) {
	var eg errgroup.Group
	for _, destination := range r.destinations {
		destination := destination
		eg.Go(func() error {
			destination.Run(ctx)
			return nil
		})
	}
	_ = eg.Wait()
}
