// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package utils contains small helpers shared by the destinations.
package utils

import (
	"context"
	"math/rand"
	"time"
)

// JitteredTicker ticks on C with intervals normally distributed around
// interval, so that many instances do not flush in lockstep.
type JitteredTicker struct {
	C        chan struct{}
	interval time.Duration
}

// NewJitteredTicker creates a ticker. It only ticks while Run is running.
func NewJitteredTicker(interval time.Duration) *JitteredTicker {
	return &JitteredTicker{
		C:        make(chan struct{}, 1),
		interval: interval,
	}
}

// Run ticks until ctx is canceled. A tick is dropped when the previous one
// was not consumed yet.
func (t *JitteredTicker) Run(ctx context.Context) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(Jitter(r, t.interval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			select {
			case t.C <- struct{}{}:
			default:
			}
			timer.Reset(Jitter(r, t.interval))
		}
	}
}

// Jitter returns d with a normally distributed deviation of d/4.
func Jitter(r *rand.Rand, d time.Duration) time.Duration {
	nanos := r.NormFloat64()*float64(d/4) + float64(d)
	if nanos <= 0 {
		nanos = 1
	}
	return time.Duration(nanos)
}
