// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"strconv"

	"github.com/zeebo/errs/v2"
)

// MultiLength is the size of a "multi" datagram.
const MultiLength = 37

// Multi datagrams carry no separators:
//
//	1 0003 JOSEF---- 1 7 2 80156809150025 GAR- 1 -
//	type, user id, user name, user state, finger, key, serial number,
//	scanner name, action, digital input
const (
	multiPacketType = 0
	multiUserID     = 1
	multiUserName   = 5
	multiUserState  = 14
	multiFinger     = 15
	multiKey        = 16
	multiSerial     = 17
	multiReader     = 31
	multiAction     = 35
	multiInput      = 36
)

// UserState is the activation state of the user in a multi datagram.
type UserState string

const (
	UserActive    UserState = "user active"
	UserInactive  UserState = "user inactive"
	UserUndefined UserState = "undefined"
)

// MultiAction is the decision reported by a multi terminal.
type MultiAction string

const (
	MultiOpen                  MultiAction = "open"
	MultiRefuseUnknownFinger   MultiAction = "refuse unknown finger"
	MultiRefuseTimeSlotA       MultiAction = "refuse time slot A"
	MultiRefuseTimeSlotB       MultiAction = "refuse time slot B"
	MultiRefuseDisabled        MultiAction = "refuse disabled"
	MultiRefuseAlwaysUsersOnly MultiAction = "refuse \"Only always users\""
	MultiScannerDisconnected   MultiAction = "scanner not connected to control panel"
	MultiDigitalInput          MultiAction = "digital input"
	MultiCodepadLock1Min       MultiAction = "codepad 1 min. lock"
	MultiCodepadLock15Min      MultiAction = "codepad 15 min. lock"
)

var multiActions = map[int64]MultiAction{
	0x1: MultiOpen,
	0x2: MultiRefuseUnknownFinger,
	0x3: MultiRefuseTimeSlotA,
	0x4: MultiRefuseTimeSlotB,
	0x5: MultiRefuseDisabled,
	0x6: MultiRefuseAlwaysUsersOnly,
	0x7: MultiScannerDisconnected,
	0x8: MultiDigitalInput,
	0xA: MultiCodepadLock1Min,
	0xB: MultiCodepadLock15Min,
}

// MultiEvent is a decoded "multi" datagram. Nil fields could not be decoded.
type MultiEvent struct {
	PacketType   *int         `json:"packetType,omitempty"`
	UserID       *int         `json:"userId,omitempty"`
	UserName     *string      `json:"username,omitempty"`
	UserState    *UserState   `json:"userState,omitempty"`
	FingerID     *int         `json:"fingerId,omitempty"`
	Finger       *string      `json:"finger,omitempty"`
	Key          *string      `json:"key,omitempty"`
	SerialNumber *string      `json:"serialNr,omitempty"`
	ReaderName   *string      `json:"readerName,omitempty"`
	Action       *MultiAction `json:"action,omitempty"`
	Input        *string      `json:"input,omitempty"`
}

// Protocol implements Record.
func (ev *MultiEvent) Protocol() Name { return Multi }

// Fields implements Record.
func (ev *MultiEvent) Fields() map[string]any {
	fields := map[string]any{}
	setInt(fields, "packetType", ev.PacketType)
	setInt(fields, "userId", ev.UserID)
	setString(fields, "username", ev.UserName)
	if ev.UserState != nil {
		fields["userState"] = string(*ev.UserState)
	}
	setInt(fields, "fingerId", ev.FingerID)
	setString(fields, "finger", ev.Finger)
	setString(fields, "key", ev.Key)
	setString(fields, "serialNr", ev.SerialNumber)
	setString(fields, "readerName", ev.ReaderName)
	if ev.Action != nil {
		fields["action"] = string(*ev.Action)
	}
	setString(fields, "input", ev.Input)
	return fields
}

// DecodeMulti decodes a 37 byte "multi" datagram.
func DecodeMulti(payload []byte) (*MultiEvent, error) {
	ev := &MultiEvent{}
	if err := checkLength(Multi, payload, MultiLength); err != nil {
		return ev, err
	}

	l := &layout{name: Multi, payload: payload}
	ev.PacketType = l.decimal("packetType", multiPacketType, 1)
	ev.UserID = l.decimal("userId", multiUserID, 4)
	ev.UserName = l.padded(multiUserName, 9)

	if l.char(multiUserState) == '-' {
		ev.UserState = ptr(UserUndefined)
	} else if state := l.decimal("userState", multiUserState, 1); state != nil {
		switch *state {
		case 0:
			ev.UserState = ptr(UserInactive)
		case 1:
			ev.UserState = ptr(UserActive)
		}
	}

	ev.FingerID, ev.Finger = l.finger(multiFinger)

	if l.char(multiKey) == '-' {
		ev.Key = ptr("Mainkey")
	} else if key := l.decimal("key", multiKey, 1); key != nil {
		ev.Key = ptr("Key " + strconv.Itoa(*key))
	}

	ev.SerialNumber = ptr(l.text(multiSerial, 14))
	ev.ReaderName = l.padded(multiReader, 4)

	if code := l.hexadecimal("action", multiAction, 1); code != nil {
		if action, ok := multiActions[*code]; ok {
			ev.Action = ptr(action)
		}
	}

	switch code := l.char(multiInput); {
	case code == '-':
		ev.Input = ptr("no digital input")
	case code >= '0' && code <= '9':
		ev.Input = ptr("Input " + strconv.Itoa(int(code-'0')))
	default:
		l.fail("input", multiInput, string(code), errs.Errorf("unknown input code"))
	}

	return ev, l.err
}
