// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"github.com/zeebo/errs/v2"
)

// RareLength is the documented size of a "rare" datagram. It is not
// enforced: only the version field is decoded.
//
//	version       long      3
//	command       long      0x88 open with finger, 0x89 bad or unknown finger
//	terminal id   long      (((yy*53 + ww) * 655367) + ssss) + 0x70000000
//	serial        char[14]
//	relay id      char[1]   0-2 channel 1-3, 15 double relay
//	reserved      char[1]
//	user id       long      0 unknown user
//	finger        long      0-9 finger 1-0, 13 RFID
//	event         char[16]
//	time          char[16]
//	name          ushort
//	personal id   ushort
//
// TODO: decode the fields after version once a terminal capture confirms
// their encoding.
const RareLength = 72

const rareVersionDigits = 8

// RareEvent is a decoded "rare" datagram.
type RareEvent struct {
	Version *int64 `json:"version,omitempty"`
}

// Protocol implements Record.
func (ev *RareEvent) Protocol() Name { return Rare }

// Fields implements Record.
func (ev *RareEvent) Fields() map[string]any {
	fields := map[string]any{}
	if ev.Version != nil {
		fields["version"] = *ev.Version
	}
	return fields
}

// DecodeRare decodes the leading hex version of a "rare" datagram. Payloads
// shorter than eight characters are read as far as they go.
func DecodeRare(payload []byte) (*RareEvent, error) {
	ev := &RareEvent{}
	l := &layout{name: Rare, payload: payload}

	size := min(len(payload), rareVersionDigits)
	if size == 0 {
		l.fail("version", 0, "", errs.Errorf("empty payload"))
		return ev, l.err
	}
	ev.Version = l.hexadecimal("version", 0, size)
	return ev, l.err
}
