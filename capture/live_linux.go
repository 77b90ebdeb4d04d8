// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

//go:build linux

package capture

import (
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/zeebo/errs/v2"
)

// Interface is a live capture on a network interface.
type Interface struct {
	*pcapgo.EthernetHandle
}

// LinkType implements Source.
func (i *Interface) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

// Close stops the capture.
func (i *Interface) Close() error {
	i.EthernetHandle.Close()
	return nil
}

// OpenInterface starts capturing on iface. It needs CAP_NET_RAW.
func OpenInterface(iface string) (*Interface, error) {
	handle, err := pcapgo.NewEthernetHandle(iface)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &Interface{EthernetHandle: handle}, nil
}
