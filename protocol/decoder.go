// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"encoding/hex"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Decoder decodes datagrams of one protocol and logs what could not be
// decoded. It is safe for concurrent use.
type Decoder struct {
	name   Name
	decode DecodeFunc
	log    *zap.Logger
}

// NewDecoder returns the decoder for name, or nil when the protocol is not
// supported.
func NewDecoder(name Name, log *zap.Logger) *Decoder {
	decode, ok := Lookup(name)
	if !ok {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{
		name:   name,
		decode: decode,
		log:    log.Named(string(name)),
	}
}

// Name returns the protocol of the decoder.
func (d *Decoder) Name() Name { return d.name }

// Decode decodes payload. A nil Decoder returns a nil record.
func (d *Decoder) Decode(payload []byte) Record {
	if d == nil {
		return nil
	}
	if ce := d.log.Check(zap.DebugLevel, "processing packet"); ce != nil {
		ce.Write(zap.Int("length", len(payload)), zap.String("hex", hex.EncodeToString(payload)))
	}
	if d.name == Rare && len(payload) != RareLength {
		d.log.Debug("rare packet differs from documented length",
			zap.Int("length", len(payload)), zap.Int("documented", RareLength))
	}

	record, err := d.decode(payload)
	if err == nil {
		return record
	}

	var lengthErr *LengthError
	if errors.As(err, &lengthErr) {
		d.log.Error("dropping packet because of length mismatch",
			zap.Int("length", len(lengthErr.Payload)),
			zap.Int("expected", lengthErr.Want),
			zap.String("hex", hex.EncodeToString(lengthErr.Payload)))
		return record
	}

	for _, fieldErr := range multierr.Errors(err) {
		d.log.Warn("field could not be decoded", zap.Error(fieldErr))
	}
	return record
}
