// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/zeebo/errs/v2"

	"storj.io/ekeyd/protocol"
)

const (
	fingerCodes = "1234567890R-"
	homeActions = "12"
	homeRelays  = "1234d-"
	multiStates = "01-"
	multiKeys   = "1234-"
	multiActs   = "12345678AB"
	multiInputs = "1234-"
)

var sampleUsers = []string{"JOSEF", "ANNA", "MARIE", "LUKAS", ""}

func pick(r *rand.Rand, s string) byte { return s[r.Intn(len(s))] }

// pad fills s up to n characters with '-'.
func pad(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat("-", n-len(s))
}

// Sample returns a random well formed datagram of proto.
func Sample(r *rand.Rand, proto protocol.Name, serial string) ([]byte, error) {
	switch proto {
	case protocol.Home:
		return []byte(fmt.Sprintf("1_%04d_%c_%s_%c_%c",
			r.Intn(100), pick(r, fingerCodes), serial, pick(r, homeActions), pick(r, homeRelays))), nil
	case protocol.Multi:
		user := r.Intn(len(sampleUsers))
		return []byte(fmt.Sprintf("1%04d%s%c%c%c%s%s%c%c",
			user, pad(sampleUsers[user], 9), pick(r, multiStates), pick(r, fingerCodes), pick(r, multiKeys),
			serial, pad("GAR", 4), pick(r, multiActs), pick(r, multiInputs))), nil
	case protocol.Rare:
		return []byte(fmt.Sprintf("%08x%s", 3, strings.Repeat("0", protocol.RareLength-8))), nil
	default:
		return nil, errs.Errorf("no sample for protocol %q", proto)
	}
}
