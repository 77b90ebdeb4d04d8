// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package bigquery

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"storj.io/ekeyd"
	"storj.io/ekeyd/destination"
	"storj.io/ekeyd/protocol"
)

// Saver stores rows grouped by table.
type Saver interface {
	Save(records map[string][]*Record) error
	Close() error
}

// Destination saves every submitted event to BigQuery. Submit blocks until
// the rows are written, wrap it in a batch layer.
type Destination struct {
	log    *zap.Logger
	saver  Saver
	prefix string

	// Instance is stored in the source_instance column.
	Instance string

	closedMu sync.Mutex
	closed   bool
}

var _ ekeyd.Destination = &Destination{}

// NewDestination returns a destination writing through saver into tables
// named after prefix.
func NewDestination(log *zap.Logger, saver Saver, prefix string) *Destination {
	d := &Destination{log: log, saver: saver, prefix: prefix}
	if host, err := os.Hostname(); err == nil {
		d.Instance = host
	}
	return d
}

// Submit implements ekeyd.Destination.
func (d *Destination) Submit(events ...*ekeyd.Event) {
	records := map[string][]*Record{}
	for _, ev := range events {
		table := TableName(d.prefix, ev.Protocol)
		records[table] = append(records[table], NewRecord(d.Instance, ev))
	}
	d.save(records)
}

// SaveForwarded stores the records of a forwarded datagram.
func (d *Destination) SaveForwarded(forwarded *destination.Forwarded) {
	records := map[string][]*Record{}
	for _, r := range forwarded.Records {
		table := TableName(d.prefix, protocol.Name(r.Protocol))
		records[table] = append(records[table], FromArchive(forwarded.Instance, r))
	}
	d.save(records)
}

func (d *Destination) save(records map[string][]*Record) {
	d.closedMu.Lock()
	defer d.closedMu.Unlock()
	if d.closed {
		return
	}
	if err := d.saver.Save(records); err != nil {
		d.log.Warn("could not save events", zap.Error(err))
	}
}

// Run implements ekeyd.Destination. It closes the destination when ctx is
// done.
func (d *Destination) Run(ctx context.Context) {
	<-ctx.Done()
	if err := d.Close(); err != nil {
		d.log.Warn("could not close bigquery client", zap.Error(err))
	}
}

// Close closes the saver. Later events are dropped.
func (d *Destination) Close() error {
	d.closedMu.Lock()
	defer d.closedMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.saver.Close()
}
