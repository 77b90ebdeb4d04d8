// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package protocol decodes the fixed-layout text datagrams sent by ekey
// finger scanners.
//
// Every protocol variant has one decode function. A decode function never
// fails as a whole: it returns a record holding every field it could read,
// and an error describing what it could not. A payload of the wrong length
// yields an empty record.
package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
)

var mon = monkit.Package()

// Name identifies a datagram layout.
type Name string

const (
	Rare  Name = "rare"
	Home  Name = "home"
	Multi Name = "multi"
)

// Names lists the supported protocols.
var Names = []Name{Rare, Home, Multi}

// ParseName normalizes s and reports whether a decoder exists for it.
func ParseName(s string) (Name, bool) {
	name := Name(strings.ToLower(strings.TrimSpace(s)))
	_, ok := decoders[name]
	return name, ok
}

// Record is a decoded datagram.
type Record interface {
	// Protocol returns the layout the record was decoded with.
	Protocol() Name
	// Fields returns the set fields keyed by their wire names.
	Fields() map[string]any
}

// DecodeFunc turns one datagram payload into a record. The record is never
// nil.
type DecodeFunc func(payload []byte) (Record, error)

var decoders = map[Name]DecodeFunc{
	Rare:  func(payload []byte) (Record, error) { return DecodeRare(payload) },
	Home:  func(payload []byte) (Record, error) { return DecodeHome(payload) },
	Multi: func(payload []byte) (Record, error) { return DecodeMulti(payload) },
}

// Lookup returns the decode function for name.
func Lookup(name Name) (DecodeFunc, bool) {
	decode, ok := decoders[name]
	return decode, ok
}

// LengthError is returned when a payload does not have the exact length its
// layout requires.
type LengthError struct {
	Protocol Name
	Want     int
	Payload  []byte
}

func (err *LengthError) Error() string {
	return fmt.Sprintf("%s: dropping packet because of length mismatch. packet was %d bytes long (want %d) and is 0x%s",
		err.Protocol, len(err.Payload), err.Want, hex.EncodeToString(err.Payload))
}

// FieldError describes a single field that could not be decoded.
type FieldError struct {
	Protocol Name
	Field    string
	Offset   int
	Value    string
	Err      error
}

func (err *FieldError) Error() string {
	return fmt.Sprintf("%s: field %s at offset %d (%q): %v", err.Protocol, err.Field, err.Offset, err.Value, err.Err)
}

func (err *FieldError) Unwrap() error { return err.Err }

func checkLength(name Name, payload []byte, want int) error {
	if len(payload) == want {
		return nil
	}
	mon.Counter("length_mismatch", monkit.NewSeriesTag("protocol", string(name))).Inc(1)
	return &LengthError{Protocol: name, Want: want, Payload: append([]byte(nil), payload...)}
}

func ptr[T any](v T) *T { return &v }
