// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storj.io/ekeyd"
)

// JSONLines writes every event as one JSON message per line.
type JSONLines struct {
	log *zap.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

var _ ekeyd.Destination = &JSONLines{}

// NewJSONLines creates a destination writing to w.
func NewJSONLines(log *zap.Logger, w io.Writer) *JSONLines {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONLines{log: log, enc: json.NewEncoder(w)}
}

// Submit implements Destination.
func (j *JSONLines) Submit(events ...*ekeyd.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ev := range events {
		if err := j.enc.Encode(ev); err != nil {
			mon.Counter("write_failures").Inc(1)
			j.log.Warn("could not write event", zap.Error(err))
		}
	}
}

// Run implements Destination.
func (j *JSONLines) Run(ctx context.Context) { <-ctx.Done() }

// Log logs every event with zap.
type Log struct {
	log   *zap.Logger
	level zapcore.Level
}

var _ ekeyd.Destination = &Log{}

// NewLog creates a destination logging events at level.
func NewLog(log *zap.Logger, level zapcore.Level) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log, level: level}
}

// Submit implements Destination.
func (l *Log) Submit(events ...*ekeyd.Event) {
	for _, ev := range events {
		ce := l.log.Check(l.level, "event")
		if ce == nil {
			return
		}
		fields := []zap.Field{
			zap.String("senderIp", ev.SenderIP),
			zap.String("protocol", string(ev.Protocol)),
		}
		if ev.Payload != nil {
			fields = append(fields, zap.Any("payload", ev.Fields()))
		}
		ce.Write(fields...)
	}
}

// Run implements Destination.
func (l *Log) Run(ctx context.Context) { <-ctx.Done() }
