// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package utils

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitter(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		require.Greater(t, Jitter(r, time.Second), time.Duration(0))
	}
}

func TestJitteredTicker(t *testing.T) {
	ticker := NewJitteredTicker(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ticker.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ticker.C:
		case <-time.After(5 * time.Second):
			t.Fatal("no tick")
		}
	}
	cancel()
	<-done
}
