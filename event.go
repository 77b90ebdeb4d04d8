// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ekeyd receives datagrams from ekey finger scanners and publishes
// them as decoded events.
package ekeyd

import (
	"context"
	"encoding/json"
	"time"

	"storj.io/ekeyd/protocol"
)

// Event is one received datagram together with its decoded payload.
type Event struct {
	SenderIP   string
	Protocol   protocol.Name
	ReceivedAt time.Time

	// Payload is nil when no decoder exists for Protocol. It has no fields
	// set when the datagram had the wrong length.
	Payload protocol.Record
}

// Fields returns the decoded payload fields, or nil without a payload.
func (e *Event) Fields() map[string]any {
	if e.Payload == nil {
		return nil
	}
	return e.Payload.Fields()
}

type message struct {
	SenderIP string          `json:"senderIp"`
	Payload  protocol.Record `json:"payload,omitempty"`
}

// MarshalJSON renders the outbound message: the sender ip and the payload.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(message{SenderIP: e.SenderIP, Payload: e.Payload})
}

// Destination receives events.
type Destination interface {
	// Submit hands events over. It must not block for long.
	Submit(events ...*Event)
	// Run processes submitted events until ctx is canceled.
	Run(ctx context.Context)
}
