// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/zeebo/errs/v2"
)

var fixedColumns = []string{"receivedAt", "protocol", "senderIp"}

// WriteJSON writes records as JSON lines.
func WriteJSON(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return errs.Wrap(err)
		}
	}
	return nil
}

// WriteCSV writes records as CSV. The header holds the fixed columns
// followed by the union of all payload fields, sorted.
func WriteCSV(w io.Writer, records []*Record) error {
	fields := map[string]struct{}{}
	for _, record := range records {
		for key := range record.Payload {
			fields[key] = struct{}{}
		}
	}
	payloadColumns := make([]string, 0, len(fields))
	for key := range fields {
		payloadColumns = append(payloadColumns, key)
	}
	sort.Strings(payloadColumns)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, fixedColumns...), payloadColumns...)); err != nil {
		return errs.Wrap(err)
	}
	for _, record := range records {
		row := []string{record.ReceivedAt.Format(time.RFC3339Nano), record.Protocol, record.SenderIP}
		for _, key := range payloadColumns {
			value, ok := record.Payload[key]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(value))
		}
		if err := cw.Write(row); err != nil {
			return errs.Wrap(err)
		}
	}
	cw.Flush()
	return errs.Wrap(cw.Error())
}
