// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
	"storj.io/ekeyd/archive"
	"storj.io/ekeyd/utils"
)

// ForwardMagic prefixes every forwarded datagram.
const ForwardMagic = "EK"

const (
	defaultForwardQueueDepth    = 100
	defaultMaxUncompressedBytes = 1000
	defaultCompressionLevel     = zlib.BestCompression

	// size of the zlib compressed trailer line with a reasonable send offset.
	trailerSize = 32
)

// A forwarded datagram is ForwardMagic followed by a zlib stream of JSON
// lines: a header, one line per event and a trailer. Event times are offsets
// from the header start time, so the receiver can correct them against its
// own clock.
type forwardLine struct {
	Instance     string          `json:"instance,omitempty"`
	Start        *time.Time      `json:"start,omitempty"`
	Event        *forwardedEvent `json:"event,omitempty"`
	SendOffsetNs int64           `json:"sendOffsetNs,omitempty"`
}

type forwardedEvent struct {
	SenderIP string         `json:"senderIp"`
	Protocol string         `json:"protocol"`
	OffsetNs int64          `json:"offsetNs"`
	Payload  map[string]any `json:"payload"`
}

// UDPForwarder sends events in compressed datagrams to a collector.
type UDPForwarder struct {
	Addr     string
	Instance string

	QueueDepth           int
	MaxUncompressedBytes int
	CompressionLevel     int
	FlushInterval        time.Duration

	log         *zap.Logger
	initOnce    sync.Once
	submitQueue chan *ekeyd.Event

	writerPool    *zlib.Writer
	droppedEvents atomic.Int64
}

var _ ekeyd.Destination = &UDPForwarder{}

// NewUDPForwarder creates a forwarder sending to addr.
func NewUDPForwarder(log *zap.Logger, addr string) *UDPForwarder {
	if log == nil {
		log = zap.NewNop()
	}
	instance, _ := os.Hostname()
	return &UDPForwarder{
		Addr:     addr,
		Instance: instance,

		QueueDepth:           defaultForwardQueueDepth,
		MaxUncompressedBytes: defaultMaxUncompressedBytes,
		CompressionLevel:     defaultCompressionLevel,
		FlushInterval:        defaultFlushInterval,

		log: log,
	}
}

func (c *UDPForwarder) init() {
	c.initOnce.Do(func() {
		c.submitQueue = make(chan *ekeyd.Event, c.QueueDepth)
	})
}

type outgoingPacket struct {
	buf                      bytes.Buffer
	zl                       *zlib.Writer
	enc                      *json.Encoder
	written, maxUncompressed int
	events                   int
	startTime                time.Time

	client *UDPForwarder
}

type countingWriter struct {
	w *zlib.Writer
	n *int
}

func (cw countingWriter) Write(p []byte) (int, error) {
	*cw.n += len(p)
	return cw.w.Write(p)
}

func (c *UDPForwarder) newOutgoingPacket() (*outgoingPacket, error) {
	op := &outgoingPacket{
		startTime:       time.Now(),
		maxUncompressed: c.MaxUncompressedBytes,
		client:          c,
	}
	op.buf.Grow(c.MaxUncompressedBytes)
	op.buf.WriteString(ForwardMagic)

	// reuse the pooled zlib writer, when one exists.
	op.zl, c.writerPool = c.writerPool, nil
	if op.zl == nil {
		var err error
		op.zl, err = zlib.NewWriterLevel(&op.buf, c.CompressionLevel)
		if err != nil {
			return nil, errs.Wrap(err)
		}
	} else {
		op.zl.Reset(&op.buf)
	}
	op.written = len(ForwardMagic)
	op.enc = json.NewEncoder(countingWriter{w: op.zl, n: &op.written})

	start := op.startTime.UTC()
	if err := op.enc.Encode(forwardLine{Instance: c.Instance, Start: &start}); err != nil {
		return nil, errs.Wrap(err)
	}
	return op, nil
}

func (op *outgoingPacket) addEvent(ev *ekeyd.Event) (full bool, err error) {
	err = op.enc.Encode(forwardLine{Event: &forwardedEvent{
		SenderIP: ev.SenderIP,
		Protocol: string(ev.Protocol),
		OffsetNs: int64(ev.ReceivedAt.Sub(op.startTime)),
		Payload:  ev.Fields(),
	}})
	if err != nil {
		return false, errs.Wrap(err)
	}
	if err := op.zl.Flush(); err != nil {
		return false, errs.Wrap(err)
	}
	op.events++
	return op.written+trailerSize > op.maxUncompressed, nil
}

func (op *outgoingPacket) finalize() ([]byte, error) {
	offset := int64(time.Since(op.startTime))
	if offset <= 0 {
		offset = 1
	}
	if err := op.enc.Encode(forwardLine{SendOffsetNs: offset}); err != nil {
		return nil, errs.Wrap(err)
	}
	if err := op.zl.Close(); err != nil {
		return nil, errs.Wrap(err)
	}
	op.client.writerPool, op.zl = op.zl, nil
	return op.buf.Bytes(), nil
}

// Submit implements Destination.
func (c *UDPForwarder) Submit(events ...*ekeyd.Event) {
	c.init()
	for _, ev := range events {
		select {
		case c.submitQueue <- ev:
		default:
			c.droppedEvents.Add(1)
			mon.Counter("dropped_events").Inc(1)
		}
	}
}

// Run implements Destination.
func (c *UDPForwarder) Run(ctx context.Context) {
	c.init()

	ticker := utils.NewJitteredTicker(c.FlushInterval)
	var background errgroup.Group
	defer func() { _ = background.Wait() }()
	background.Go(func() error {
		ticker.Run(ctx)
		return nil
	})

	p, err := c.newOutgoingPacket()
	if err != nil {
		c.log.Error("could not start packet", zap.Error(err))
		return
	}

	sendAndReset := func() {
		if err := c.send(p); err != nil {
			c.log.Warn("could not forward events", zap.String("addr", c.Addr), zap.Int("events", p.events), zap.Error(err))
		}
		next, err := c.newOutgoingPacket()
		if err != nil {
			c.log.Error("could not start packet", zap.Error(err))
			return
		}
		p = next
	}
	add := func(ev *ekeyd.Event) {
		full, err := p.addEvent(ev)
		if err != nil {
			c.log.Warn("could not encode event", zap.Error(err))
		}
		if full {
			sendAndReset()
		}
	}

	for {
		if drops := c.droppedEvents.Swap(0); drops > 0 {
			c.log.Warn("forward queue overflowed", zap.Int64("dropped", drops))
		}

		select {
		case ev := <-c.submitQueue:
			add(ev)
		case <-ticker.C:
			if p.events > 0 {
				sendAndReset()
			}
		case <-ctx.Done():
			left := len(c.submitQueue)
			for i := 0; i < left; i++ {
				add(<-c.submitQueue)
			}
			if p.events > 0 {
				if err := c.send(p); err != nil {
					c.log.Warn("could not forward events", zap.String("addr", c.Addr), zap.Error(err))
				}
			}
			return
		}
	}
}

func (c *UDPForwarder) send(packet *outgoingPacket) (err error) {
	defer mon.Task()(nil)(&err)

	data, err := packet.finalize()
	if err != nil {
		return err
	}

	raddr, err := net.ResolveUDPAddr("udp", c.Addr)
	if err != nil {
		return errs.Wrap(err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() {
		if errClose := conn.Close(); err == nil && errClose != nil {
			err = errs.Wrap(errClose)
		}
	}()

	_, _, err = conn.WriteMsgUDP(data, nil, nil)
	mon.Counter("forwarded_events").Inc(int64(packet.events))
	return errs.Wrap(err)
}

// Forwarded is the content of a forwarded datagram.
type Forwarded struct {
	Instance string
	Records  []*archive.Record
}

// ParseForwarded decodes a datagram sent by a UDPForwarder. Event times are
// corrected against received, assuming the datagram arrived instantly.
func ParseForwarded(data []byte, received time.Time) (*Forwarded, error) {
	if !bytes.HasPrefix(data, []byte(ForwardMagic)) {
		return nil, errs.Errorf("missing magic")
	}
	zl, err := zlib.NewReader(bytes.NewReader(data[len(ForwardMagic):]))
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer func() { _ = zl.Close() }()

	var (
		forwarded  Forwarded
		start      time.Time
		sendOffset int64
		events     []*forwardedEvent
	)
	dec := json.NewDecoder(bufio.NewReader(zl))
	for {
		var line forwardLine
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errs.Wrap(err)
		}
		switch {
		case line.Start != nil:
			forwarded.Instance = line.Instance
			start = *line.Start
		case line.Event != nil:
			events = append(events, line.Event)
		case line.SendOffsetNs != 0:
			sendOffset = line.SendOffsetNs
		}
	}
	if start.IsZero() || sendOffset == 0 {
		return nil, errs.Errorf("truncated packet")
	}

	correctedStart := received.Add(-time.Duration(sendOffset))
	for _, ev := range events {
		forwarded.Records = append(forwarded.Records, &archive.Record{
			SenderIP:   ev.SenderIP,
			Protocol:   ev.Protocol,
			ReceivedAt: correctedStart.Add(time.Duration(ev.OffsetNs)).UTC(),
			Payload:    ev.Payload,
		})
	}
	return &forwarded, nil
}
