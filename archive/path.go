// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package archive

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/errs/v2"
)

// Extension is the file extension of archive files.
const Extension = ".ekz"

const dateFormat = "2006-01" + string(filepath.Separator) + "02-15" + string(filepath.Separator)

// Escape encodes val so it is a portable, case-insensitive file name.
func Escape(val string) string {
	var out strings.Builder
	escapeTo(val, &out)
	return out.String()
}

func escapeTo(val string, out *strings.Builder) {
	for _, b := range []byte(val) {
		switch {
		case b >= 'a' && b <= 'z':
			out.WriteByte(b)
		case b >= 'A' && b <= 'Z':
			out.WriteByte('+')
			out.WriteByte(b)
		case b >= '0' && b <= '9':
			out.WriteByte(b)
		case b == '-':
			out.WriteByte(b)
		case b == '_':
			out.WriteString("__")
		default:
			buf := [3]byte{'_', 0, 0}
			hex.Encode(buf[1:], []byte{b})
			out.Write(buf[:])
		}
	}
}

// Unescape reverses Escape.
func Unescape(val string) (string, error) {
	data := []byte(val)
	var out strings.Builder
	for len(data) > 0 {
		b := data[0]
		switch {
		case (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-':
			out.WriteString(strings.ToLower(string(b)))
			data = data[1:]
		case b == '+':
			if len(data) < 2 || !isLetter(data[1]) {
				return "", errs.Errorf("%q unparsable", val)
			}
			out.WriteString(strings.ToUpper(string(data[1])))
			data = data[2:]
		case b == '_':
			if len(data) > 1 && data[1] == '_' {
				out.WriteByte('_')
				data = data[2:]
				continue
			}
			if len(data) < 3 {
				return "", errs.Errorf("%q unparsable", val)
			}
			res, err := hex.DecodeString(string(data[1:3]))
			if err != nil {
				return "", errs.Wrap(err)
			}
			out.WriteByte(res[0])
			data = data[3:]
		default:
			return "", errs.Errorf("%q unparsable", val)
		}
	}
	return out.String(), nil
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// Compute returns the file events of protocol from sender received in the
// hour of timestamp are appended to:
//
//	base/YYYY-MM/DD-HH/protocol/sender.ekz
func Compute(base string, timestamp time.Time, protocol, sender string) string {
	var out strings.Builder
	out.WriteString(filepath.Clean(base))
	out.WriteByte(filepath.Separator)
	out.WriteString(timestamp.UTC().Format(dateFormat))
	if protocol == "" {
		protocol = "unknown"
	}
	escapeTo(protocol, &out)
	out.WriteByte(filepath.Separator)
	escapeTo(sender, &out)
	out.WriteString(Extension)
	return out.String()
}

// Parse returns the protocol and sender encoded in an archive file path.
func Parse(path string) (protocol, sender string, err error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, Extension) {
		return "", "", errs.Errorf("%q is not an archive file", path)
	}
	sender, err = Unescape(strings.TrimSuffix(base, Extension))
	if err != nil {
		return "", "", err
	}
	protocol, err = Unescape(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return "", "", err
	}
	return protocol, sender, nil
}
