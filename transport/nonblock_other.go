// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

//go:build !unix && !windows

package transport

// setNonblock is a no-op; the runtime poller already owns the descriptor.
func setNonblock(fd uintptr) error { return nil }
