// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package listener

import (
	"net"
	"time"
)

// Packet is one received datagram.
type Packet struct {
	Payload    []byte
	Source     *net.UDPAddr
	ReceivedAt time.Time
}

// SenderIP renders the source address as an IPv4 or IPv6 string.
// IPv4-mapped IPv6 addresses are rendered as IPv4 and zones are dropped.
func (p *Packet) SenderIP() string {
	if p.Source == nil {
		return ""
	}
	return p.Source.AddrPort().Addr().Unmap().WithZone("").String()
}

// State is the connection state of a Listener.
type State int32

const (
	// Disconnected means no endpoint is bound.
	Disconnected State = iota
	// Listening means an endpoint is bound and polled.
	Listening
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}
