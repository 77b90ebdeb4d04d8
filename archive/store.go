// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package archive stores events on disk, one file per hour, protocol and
// sender, and reads them back.
package archive

import (
	"bufio"
	"compress/zlib"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs/v2"
	"go.uber.org/multierr"

	"storj.io/ekeyd"
)

var mon = monkit.Package()

// Record is the stored form of an event. Payload is nil when the protocol
// had no decoder and empty when the datagram had the wrong length.
type Record struct {
	SenderIP   string         `json:"senderIp"`
	Protocol   string         `json:"protocol"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Payload    map[string]any `json:"payload"`
}

// NewRecord converts ev.
func NewRecord(ev *ekeyd.Event) *Record {
	return &Record{
		SenderIP:   ev.SenderIP,
		Protocol:   string(ev.Protocol),
		ReceivedAt: ev.ReceivedAt.UTC(),
		Payload:    ev.Fields(),
	}
}

type handle struct {
	mu sync.Mutex
	fh *os.File
}

// Store appends events to archive files below a base directory. Open files
// are kept until DropAll.
type Store struct {
	base  string
	level int

	mu      sync.Mutex
	handles map[string]*handle
}

// NewStore creates a store below base.
func NewStore(base string) *Store {
	return &Store{
		base:    base,
		level:   zlib.DefaultCompression,
		handles: map[string]*handle{},
	}
}

// Base returns the base directory.
func (s *Store) Base() string { return s.base }

// Append stores events. Events going to the same file are written as one
// compressed segment.
func (s *Store) Append(events ...*ekeyd.Event) (err error) {
	defer mon.Task()(nil)(&err)

	var order []string
	groups := map[string][]*Record{}
	for _, ev := range events {
		record := NewRecord(ev)
		path := Compute(s.base, record.ReceivedAt, record.Protocol, record.SenderIP)
		if _, ok := groups[path]; !ok {
			order = append(order, path)
		}
		groups[path] = append(groups[path], record)
	}

	for _, path := range order {
		err = multierr.Append(err, s.appendTo(path, groups[path]))
	}
	return err
}

func (s *Store) appendTo(path string, records []*Record) error {
	h, err := s.open(path)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()

	buffered := bufio.NewWriter(h.fh)
	segment, err := NewSegmentWriter(buffered, s.level)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(segment)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return errs.Wrap(err)
		}
	}
	if err := segment.Close(); err != nil {
		return err
	}
	mon.Counter("archived_events").Inc(int64(len(records)))
	return errs.Wrap(buffered.Flush())
}

// open returns the locked handle of path.
func (s *Store) open(path string) (*handle, error) {
	s.mu.Lock()
	h, ok := s.handles[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			s.mu.Unlock()
			return nil, errs.Wrap(err)
		}
		fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			s.mu.Unlock()
			return nil, errs.Wrap(err)
		}
		h = &handle{fh: fh}
		s.handles[path] = h
	}

	h.mu.Lock()
	s.mu.Unlock()
	return h, nil
}

// DropAll closes every open file.
func (s *Store) DropAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for path, h := range s.handles {
		delete(s.handles, path)
		h.mu.Lock()
		err = multierr.Append(err, h.fh.Close())
		h.mu.Unlock()
	}
	return errs.Wrap(err)
}

// Close closes every open file.
func (s *Store) Close() error { return s.DropAll() }
