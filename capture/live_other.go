// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

//go:build !linux

package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/zeebo/errs/v2"
)

// Interface is a live capture on a network interface.
type Interface struct{}

// ReadPacketData implements Source.
func (i *Interface) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, errs.Errorf("live capture is only supported on linux")
}

// LinkType implements Source.
func (i *Interface) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

// Close implements io.Closer.
func (i *Interface) Close() error { return nil }

// OpenInterface always fails outside of linux.
func OpenInterface(iface string) (*Interface, error) {
	return nil, errs.Errorf("live capture on %q: only supported on linux", iface)
}
