// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDecodeHomeOpen(t *testing.T) {
	ev, err := DecodeHome([]byte("1_0046_4_80156809150025_1_2"))
	require.NoError(t, err)

	require.Equal(t, 1, *ev.PacketType)
	require.Equal(t, 46, *ev.UserID)
	require.Equal(t, 4, *ev.FingerID)
	require.Equal(t, "Left Hand Index Finger", *ev.Finger)
	require.Equal(t, "80156809150025", *ev.SerialNumber)
	require.Equal(t, HomeOpen, *ev.Action)
	require.Equal(t, 2, *ev.RelayID)
	require.Equal(t, "Relays2", *ev.Relay)
}

func TestDecodeHomeRefuse(t *testing.T) {
	ev, err := DecodeHome([]byte("1_0000_-_80156809150025_2_-"))
	require.NoError(t, err)

	require.Equal(t, 0, *ev.UserID)
	require.Equal(t, FingerUnknown, *ev.FingerID)
	require.Equal(t, "Unknown Finger", *ev.Finger)
	require.Equal(t, HomeRefuse, *ev.Action)
	require.Equal(t, RelayNone, *ev.RelayID)
	require.Equal(t, "none", *ev.Relay)
}

func TestDecodeHomeRelaysAndActions(t *testing.T) {
	ev, err := DecodeHome([]byte("1_0012_R_80156809150025_7_d"))
	require.NoError(t, err)
	require.Equal(t, FingerRFID, *ev.FingerID)
	require.Equal(t, "RFID", *ev.Finger)
	require.Nil(t, ev.Action)
	require.Equal(t, RelayMultiple, *ev.RelayID)
	require.Equal(t, "Multiple Relays", *ev.Relay)
}

func TestDecodeHomeLengthMismatch(t *testing.T) {
	for _, payload := range []string{"", "1004648015680915002512", "1_0046_4_80156809150025_1_2_"} {
		ev, err := DecodeHome([]byte(payload))
		var lengthErr *LengthError
		require.True(t, errors.As(err, &lengthErr), payload)
		require.Equal(t, HomeLength, lengthErr.Want)
		require.Equal(t, &HomeEvent{}, ev)
		require.Empty(t, ev.Fields())
	}
}

func TestDecodeHomeBestEffort(t *testing.T) {
	ev, err := DecodeHome([]byte("1_00X6_4_80156809150025_x_?"))
	require.Error(t, err)

	require.Nil(t, ev.UserID)
	require.Nil(t, ev.Action)
	require.Nil(t, ev.RelayID)
	require.Nil(t, ev.Relay)
	require.Equal(t, 1, *ev.PacketType)
	require.Equal(t, 4, *ev.FingerID)
	require.Equal(t, "80156809150025", *ev.SerialNumber)

	var fields []string
	for _, fieldErr := range multierr.Errors(err) {
		var fe *FieldError
		require.True(t, errors.As(fieldErr, &fe))
		fields = append(fields, fe.Field)
	}
	require.Equal(t, []string{"userId", "action", "relay"}, fields)
}

func TestDecodeMulti(t *testing.T) {
	ev, err := DecodeMulti([]byte("10003JOSEF----17280156809150025GAR-1-"))
	require.NoError(t, err)

	require.Equal(t, 1, *ev.PacketType)
	require.Equal(t, 3, *ev.UserID)
	require.Equal(t, "JOSEF", *ev.UserName)
	require.Equal(t, UserActive, *ev.UserState)
	require.Equal(t, 7, *ev.FingerID)
	require.Equal(t, "Right Hand Index Finger", *ev.Finger)
	require.Equal(t, "Key 2", *ev.Key)
	require.Equal(t, "80156809150025", *ev.SerialNumber)
	require.Equal(t, "GAR", *ev.ReaderName)
	require.Equal(t, MultiOpen, *ev.Action)
	require.Equal(t, "no digital input", *ev.Input)
}

func TestDecodeMultiStatesAndKeys(t *testing.T) {
	ev, err := DecodeMulti([]byte("10003---------0R-80156809150025----83"))
	require.NoError(t, err)
	require.Equal(t, "", *ev.UserName)
	require.Equal(t, UserInactive, *ev.UserState)
	require.Equal(t, FingerRFID, *ev.FingerID)
	require.Equal(t, "Mainkey", *ev.Key)
	require.Equal(t, "", *ev.ReaderName)
	require.Equal(t, MultiDigitalInput, *ev.Action)
	require.Equal(t, "Input 3", *ev.Input)

	ev, err = DecodeMulti([]byte("10003JOSEF-----4280156809150025GAR-1-"))
	require.NoError(t, err)
	require.Equal(t, UserUndefined, *ev.UserState)

	ev, err = DecodeMulti([]byte("10003JOSEF----74280156809150025GAR-1-"))
	require.NoError(t, err)
	require.Nil(t, ev.UserState)
}

func TestDecodeMultiActions(t *testing.T) {
	cases := map[byte]MultiAction{
		'1': MultiOpen,
		'2': MultiRefuseUnknownFinger,
		'3': MultiRefuseTimeSlotA,
		'4': MultiRefuseTimeSlotB,
		'5': MultiRefuseDisabled,
		'6': MultiRefuseAlwaysUsersOnly,
		'7': MultiScannerDisconnected,
		'8': MultiDigitalInput,
		'A': MultiCodepadLock1Min,
		'B': MultiCodepadLock15Min,
		'a': MultiCodepadLock1Min,
		'b': MultiCodepadLock15Min,
	}
	for code, want := range cases {
		payload := []byte("10003JOSEF----17280156809150025GAR-1-")
		payload[multiAction] = code
		ev, err := DecodeMulti(payload)
		require.NoError(t, err)
		require.Equal(t, want, *ev.Action, string(code))
	}

	for _, code := range []byte("09CF") {
		payload := []byte("10003JOSEF----17280156809150025GAR-1-")
		payload[multiAction] = code
		ev, err := DecodeMulti(payload)
		require.NoError(t, err)
		require.Nil(t, ev.Action, string(code))
	}

	payload := []byte("10003JOSEF----17280156809150025GAR-1-")
	payload[multiAction] = 'x'
	ev, err := DecodeMulti(payload)
	require.Error(t, err)
	require.Nil(t, ev.Action)
	require.Equal(t, "no digital input", *ev.Input)
}

func TestDecodeMultiLengthMismatch(t *testing.T) {
	ev, err := DecodeMulti([]byte("1_0003_JOSEF----_1_7_2_80156809150025_GAR-_1_-"))
	var lengthErr *LengthError
	require.True(t, errors.As(err, &lengthErr))
	require.Equal(t, MultiLength, lengthErr.Want)
	require.Equal(t, &MultiEvent{}, ev)
}

func TestDecodeRare(t *testing.T) {
	ev, err := DecodeRare([]byte("00000003rest-of-the-packet"))
	require.NoError(t, err)
	require.Equal(t, int64(3), *ev.Version)

	ev, err = DecodeRare([]byte("1f"))
	require.NoError(t, err)
	require.Equal(t, int64(31), *ev.Version)

	ev, err = DecodeRare([]byte("zz000003"))
	require.Error(t, err)
	require.Nil(t, ev.Version)

	ev, err = DecodeRare(nil)
	require.Error(t, err)
	require.Nil(t, ev.Version)
}

func TestLookupFinger(t *testing.T) {
	cases := map[byte]string{
		'1': "Left Hand Pinky",
		'2': "Left Hand Ring Finger",
		'3': "Left Hand Middle Finger",
		'4': "Left Hand Index Finger",
		'5': "Left Hand Thumb",
		'6': "Right Hand Thumb",
		'7': "Right Hand Index Finger",
		'8': "Right Hand Middle Finger",
		'9': "Right Hand Ring Finger",
		'0': "Right Hand Pinky",
		'R': "RFID",
		'-': "Unknown Finger",
	}
	for code, label := range cases {
		f, err := LookupFinger(code)
		require.NoError(t, err)
		require.Equal(t, label, f.Label(), string(code))
	}

	f, err := LookupFinger('0')
	require.NoError(t, err)
	require.Equal(t, 0, f.ID)

	_, err = LookupFinger('x')
	require.Error(t, err)
}

func TestRecordJSON(t *testing.T) {
	ev, err := DecodeHome([]byte("1_0046_4_80156809150025_1_2"))
	require.NoError(t, err)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"packetType": 1, "userId": 46, "fingerId": 4, "finger": "Left Hand Index Finger",
		"serialNr": "80156809150025", "action": "open", "relaysId": 2, "relay": "Relays2"
	}`, string(data))

	data, err = json.Marshal(&MultiEvent{})
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))
}

func TestParseName(t *testing.T) {
	name, ok := ParseName(" Home ")
	require.True(t, ok)
	require.Equal(t, Home, name)

	_, ok = ParseName("ekey")
	require.False(t, ok)
}

func TestDecoderLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDecoder(Home, zap.New(core))

	record := d.Decode([]byte("short"))
	require.Empty(t, record.Fields())
	mismatch := logs.FilterMessage("dropping packet because of length mismatch").All()
	require.Len(t, mismatch, 1)
	require.Equal(t, zapcore.ErrorLevel, mismatch[0].Level)
	require.Equal(t, "73686f7274", mismatch[0].ContextMap()["hex"])

	record = d.Decode([]byte("1_00X6_4_80156809150025_1_x"))
	require.NotContains(t, record.Fields(), "userId")
	require.Contains(t, record.Fields(), "serialNr")
	require.Equal(t, 2, logs.FilterMessage("field could not be decoded").Len())

	require.Nil(t, NewDecoder("ekey", nil))
	var missing *Decoder
	require.Nil(t, missing.Decode([]byte("anything")))
}
