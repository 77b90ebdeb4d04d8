// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package bigquery

import (
	"math"
	"time"

	"cloud.google.com/go/bigquery"

	"storj.io/ekeyd"
	"storj.io/ekeyd/archive"
)

var _ bigquery.ValueSaver = &Record{}

// Record is one row of an event table.
type Record struct {
	Instance   string
	SenderIP   string
	Protocol   string
	ReceivedAt time.Time

	Fields map[string]any
}

// NewRecord converts ev, received by instance.
func NewRecord(instance string, ev *ekeyd.Event) *Record {
	return &Record{
		Instance:   instance,
		SenderIP:   ev.SenderIP,
		Protocol:   string(ev.Protocol),
		ReceivedAt: ev.ReceivedAt,
		Fields:     ev.Fields(),
	}
}

// FromArchive converts a stored or forwarded record. JSON numbers without a
// fraction become integers again.
func FromArchive(instance string, r *archive.Record) *Record {
	fields := make(map[string]any, len(r.Payload))
	for key, value := range r.Payload {
		if f, ok := value.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			value = int64(f)
		}
		fields[key] = value
	}
	return &Record{
		Instance:   instance,
		SenderIP:   r.SenderIP,
		Protocol:   r.Protocol,
		ReceivedAt: r.ReceivedAt,
		Fields:     fields,
	}
}

// Save implements bigquery.ValueSaver.
func (r *Record) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, 4+len(r.Fields))
	row["source_instance"] = r.Instance
	row["sender_ip"] = r.SenderIP
	row["protocol"] = r.Protocol
	row["received_at"] = r.ReceivedAt
	for key, value := range r.Fields {
		row[FieldColumn(key)] = value
	}
	return row, "", nil
}
