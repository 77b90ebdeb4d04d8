// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package listener receives ekey datagrams on a UDP socket, decodes them and
// submits the resulting events.
package listener

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/ekeyd"
	"storj.io/ekeyd/protocol"
	"storj.io/ekeyd/transport"
)

var mon = monkit.Package()

// DefaultInterval is the default retry and poll interval.
const DefaultInterval = time.Second

// Config is the immutable configuration of one listener run.
type Config struct {
	// Address to bind to. Empty selects this host's address.
	Address string
	Port    uint16
	// Protocol selects the decoder. Events of an unsupported protocol carry
	// only the sender ip.
	Protocol protocol.Name

	// RetryInterval is the delay between bind attempts.
	RetryInterval time.Duration
	// PollInterval bounds how long a receive waits, and with it the latency
	// of noticing cancellation.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultInterval
	}
	return c
}

// Listener binds a UDP endpoint and turns every datagram into an event.
type Listener struct {
	log     *zap.Logger
	config  Config
	decoder *protocol.Decoder
	output  ekeyd.Destination
	state   atomic.Int32
	addr    atomic.Pointer[net.UDPAddr]
}

// New creates a listener which submits events to output.
func New(log *zap.Logger, config Config, output ekeyd.Destination) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	config = config.withDefaults()
	decoder := protocol.NewDecoder(config.Protocol, log)
	if decoder == nil {
		log.Warn("unsupported protocol, events will only carry the sender ip",
			zap.String("protocol", string(config.Protocol)))
	}
	return &Listener{
		log:     log,
		config:  config,
		decoder: decoder,
		output:  output,
	}
}

// State returns the current connection state.
func (l *Listener) State() State { return State(l.state.Load()) }

func (l *Listener) setState(s State) { l.state.Store(int32(s)) }

// LocalAddr returns the bound address, or nil while disconnected.
func (l *Listener) LocalAddr() *net.UDPAddr { return l.addr.Load() }

// Run binds the endpoint and processes datagrams until ctx is canceled. Bind
// and receive failures are logged and retried. Run returns nil once ctx is
// canceled.
func (l *Listener) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	var endpoint *transport.Endpoint
	disconnect := func() {
		if endpoint != nil {
			if err := endpoint.Close(); err != nil {
				l.log.Debug("closing endpoint", zap.Error(err))
			}
			endpoint = nil
		}
		l.addr.Store(nil)
		l.setState(Disconnected)
	}
	defer disconnect()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if endpoint == nil {
			endpoint, err = transport.Acquire(ctx, l.config.Address, l.config.Port)
			if err != nil {
				endpoint = nil
				mon.Counter("bind_failures").Inc(1)
				l.log.Warn("could not bind, retrying",
					zap.String("address", l.config.Address),
					zap.Uint16("port", l.config.Port),
					zap.Duration("retry", l.config.RetryInterval),
					zap.Error(err))
				if !sleep(ctx, l.config.RetryInterval) {
					return nil
				}
				continue
			}
			l.addr.Store(endpoint.LocalAddr())
			l.setState(Listening)
			l.log.Info("listening", zap.Stringer("address", endpoint.LocalAddr()),
				zap.String("protocol", string(l.config.Protocol)))
		}

		payload, source, err := endpoint.Receive(l.config.PollInterval)
		switch {
		case err == nil:
			l.Handle(&Packet{Payload: payload, Source: source, ReceivedAt: time.Now()})
		case errors.Is(err, transport.ErrWaitTimeout):
		default:
			mon.Counter("receive_failures").Inc(1)
			l.log.Warn("receive failed, reconnecting", zap.Error(err))
			disconnect()
			if !sleep(ctx, l.config.RetryInterval) {
				return nil
			}
		}
	}
}

// Handle decodes packet and submits the event.
func (l *Listener) Handle(packet *Packet) {
	mon.Counter("packets", monkit.NewSeriesTag("protocol", string(l.config.Protocol))).Inc(1)

	event := &ekeyd.Event{
		SenderIP:   packet.SenderIP(),
		Protocol:   l.config.Protocol,
		ReceivedAt: packet.ReceivedAt,
		Payload:    l.decoder.Decode(packet.Payload),
	}
	l.log.Debug("received", zap.String("sender", event.SenderIP), zap.Int("length", len(packet.Payload)))
	l.output.Submit(event)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
