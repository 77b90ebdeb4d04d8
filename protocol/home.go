// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"strconv"

	"github.com/zeebo/errs/v2"
)

// HomeLength is the size of a "home" datagram.
const HomeLength = 27

// Home datagrams use '_' between fields:
//
//	1_0046_4_80156809150025_1_2
//	| |    | |              | `- relay: 1-4, d (double relay), - (none)
//	| |    | |              `--- action: 1 open, 2 refuse unknown finger
//	| |    | `------------------ serial number of the finger scanner
//	| |    `-------------------- finger code
//	| `------------------------- user id
//	`--------------------------- packet type
const (
	homePacketType = 0
	homeUserID     = 2
	homeFinger     = 7
	homeSerial     = 9
	homeAction     = 24
	homeRelay      = 26
)

const (
	// RelayMultiple is the relay id of a double relay.
	RelayMultiple = -1
	// RelayNone is the relay id when no relay was switched.
	RelayNone = -2
)

// HomeAction is the decision reported by a home terminal.
type HomeAction string

const (
	HomeOpen   HomeAction = "open"
	HomeRefuse HomeAction = "refuse"
)

// HomeEvent is a decoded "home" datagram. Nil fields could not be decoded.
type HomeEvent struct {
	PacketType   *int        `json:"packetType,omitempty"`
	UserID       *int        `json:"userId,omitempty"`
	FingerID     *int        `json:"fingerId,omitempty"`
	Finger       *string     `json:"finger,omitempty"`
	SerialNumber *string     `json:"serialNr,omitempty"`
	Action       *HomeAction `json:"action,omitempty"`
	RelayID      *int        `json:"relaysId,omitempty"`
	Relay        *string     `json:"relay,omitempty"`
}

// Protocol implements Record.
func (ev *HomeEvent) Protocol() Name { return Home }

// Fields implements Record.
func (ev *HomeEvent) Fields() map[string]any {
	fields := map[string]any{}
	setInt(fields, "packetType", ev.PacketType)
	setInt(fields, "userId", ev.UserID)
	setInt(fields, "fingerId", ev.FingerID)
	setString(fields, "finger", ev.Finger)
	setString(fields, "serialNr", ev.SerialNumber)
	if ev.Action != nil {
		fields["action"] = string(*ev.Action)
	}
	setInt(fields, "relaysId", ev.RelayID)
	setString(fields, "relay", ev.Relay)
	return fields
}

// DecodeHome decodes a 27 byte "home" datagram.
func DecodeHome(payload []byte) (*HomeEvent, error) {
	ev := &HomeEvent{}
	if err := checkLength(Home, payload, HomeLength); err != nil {
		return ev, err
	}

	l := &layout{name: Home, payload: payload}
	ev.PacketType = l.decimal("packetType", homePacketType, 1)
	ev.UserID = l.decimal("userId", homeUserID, 4)
	ev.FingerID, ev.Finger = l.finger(homeFinger)
	ev.SerialNumber = ptr(l.text(homeSerial, 14))

	if action := l.decimal("action", homeAction, 1); action != nil {
		switch *action {
		case 1:
			ev.Action = ptr(HomeOpen)
		case 2:
			ev.Action = ptr(HomeRefuse)
		}
	}

	switch code := l.char(homeRelay); {
	case code == 'd':
		ev.RelayID, ev.Relay = ptr(RelayMultiple), ptr("Multiple Relays")
	case code == '-':
		ev.RelayID, ev.Relay = ptr(RelayNone), ptr("none")
	case code >= '0' && code <= '9':
		id := int(code - '0')
		ev.RelayID, ev.Relay = ptr(id), ptr("Relays"+strconv.Itoa(id))
	default:
		l.fail("relay", homeRelay, string(code), errs.Errorf("unknown relay code"))
	}

	return ev, l.err
}

func setInt(fields map[string]any, key string, v *int) {
	if v != nil {
		fields[key] = *v
	}
}

func setString(fields map[string]any, key string, v *string) {
	if v != nil {
		fields[key] = *v
	}
}
