// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"strconv"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs/v2"
	"go.uber.org/multierr"
)

// layout reads positional fields out of a payload whose length has already
// been checked. Failed fields are collected instead of aborting.
type layout struct {
	name    Name
	payload []byte
	err     error
}

func (l *layout) text(offset, size int) string {
	return string(l.payload[offset : offset+size])
}

func (l *layout) char(offset int) byte {
	return l.payload[offset]
}

func (l *layout) fail(field string, offset int, value string, err error) {
	mon.Counter("field_failure",
		monkit.NewSeriesTag("protocol", string(l.name)),
		monkit.NewSeriesTag("field", field)).Inc(1)
	l.err = multierr.Append(l.err, &FieldError{
		Protocol: l.name,
		Field:    field,
		Offset:   offset,
		Value:    value,
		Err:      err,
	})
}

// decimal parses size decimal digits at offset.
func (l *layout) decimal(field string, offset, size int) *int {
	value := l.text(offset, size)
	n, err := parseDigits(value, 10)
	if err != nil {
		l.fail(field, offset, value, err)
		return nil
	}
	return ptr(int(n))
}

// hexadecimal parses size hex digits at offset.
func (l *layout) hexadecimal(field string, offset, size int) *int64 {
	value := l.text(offset, size)
	n, err := parseDigits(value, 16)
	if err != nil {
		l.fail(field, offset, value, err)
		return nil
	}
	return ptr(int64(n))
}

// padded returns size characters at offset with every '-' removed.
func (l *layout) padded(offset, size int) *string {
	return ptr(strings.ReplaceAll(l.text(offset, size), "-", ""))
}

func (l *layout) finger(offset int) (id *int, label *string) {
	code := l.char(offset)
	f, err := LookupFinger(code)
	if err != nil {
		l.fail("finger", offset, string(code), err)
		return nil, nil
	}
	return ptr(f.ID), ptr(f.Label())
}

// parseDigits accepts only digits of the given base; no sign, prefix or
// surrounding space.
func parseDigits(value string, base int) (uint64, error) {
	if value == "" {
		return 0, errs.Errorf("empty number")
	}
	for i := 0; i < len(value); i++ {
		if !isDigit(value[i], base) {
			return 0, errs.Errorf("invalid base %d digit %q", base, value[i])
		}
	}
	n, err := strconv.ParseUint(value, base, 32)
	if err != nil {
		return 0, errs.Wrap(err)
	}
	return n, nil
}

func isDigit(b byte, base int) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case base == 16 && b >= 'a' && b <= 'f':
		return true
	case base == 16 && b >= 'A' && b <= 'F':
		return true
	}
	return false
}
