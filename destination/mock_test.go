// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"context"
	"sync"

	"storj.io/ekeyd"
)

type mockDestination struct {
	mu     sync.Mutex
	events [][]*ekeyd.Event
}

func (m *mockDestination) Submit(events ...*ekeyd.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events)
}

func (m *mockDestination) Run(ctx context.Context) { <-ctx.Done() }

// Len returns the number of received events.
func (m *mockDestination) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, batch := range m.events {
		n += len(batch)
	}
	return n
}

func (m *mockDestination) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
