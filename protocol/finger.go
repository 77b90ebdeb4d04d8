// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"github.com/zeebo/errs/v2"
)

const (
	// FingerRFID is the finger id reported for an RFID token.
	FingerRFID = -1
	// FingerUnknown is the finger id reported when no finger was recognized.
	FingerUnknown = -2
)

// Finger describes which finger (or token) triggered a scan.
type Finger struct {
	ID   int
	Hand string
	Part string
}

// Label is the human readable finger description, e.g. "Left Hand Thumb".
func (f Finger) Label() string {
	switch f.ID {
	case FingerRFID:
		return "RFID"
	case FingerUnknown:
		return "Unknown Finger"
	}
	return f.Hand + " " + f.Part
}

// fingerParts maps a digit to its part; digits d and 11-d (mod 10) mirror
// each other across hands.
var fingerParts = [10]string{
	0: "Pinky",
	1: "Pinky",
	2: "Ring Finger",
	3: "Middle Finger",
	4: "Index Finger",
	5: "Thumb",
	6: "Thumb",
	7: "Index Finger",
	8: "Middle Finger",
	9: "Ring Finger",
}

// LookupFinger decodes a one character finger code.
func LookupFinger(code byte) (Finger, error) {
	switch {
	case code == 'R':
		return Finger{ID: FingerRFID}, nil
	case code == '-':
		return Finger{ID: FingerUnknown}, nil
	case code >= '0' && code <= '9':
		id := int(code - '0')
		hand := "Right Hand"
		if id >= 1 && id <= 5 {
			hand = "Left Hand"
		}
		return Finger{ID: id, Hand: hand, Part: fingerParts[id]}, nil
	}
	return Finger{}, errs.Errorf("unknown finger code %q", code)
}
