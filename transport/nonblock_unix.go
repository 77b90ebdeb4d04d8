// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

//go:build unix

package transport

import "syscall"

func setNonblock(fd uintptr) error {
	return syscall.SetNonblock(int(fd), true)
}
