// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Command ekey-monitor shows ekey events live in the terminal. It accepts
// datagrams straight from terminals as well as datagrams forwarded by ekeyd.
package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	ui "github.com/elek/bubbles"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
	"storj.io/ekeyd/archive"
	"storj.io/ekeyd/destination"
	"storj.io/ekeyd/listener"
	"storj.io/ekeyd/protocol"
	"storj.io/ekeyd/transport"
)

func main() {
	c := cobra.Command{
		Use:   "ekey-monitor",
		Short: "Interactive ekey event monitor",
		Args:  cobra.NoArgs,
	}
	listenAddress := c.Flags().StringP("listen", "l", "localhost:9002", "UDP host:port for receiving datagrams")
	proto := c.Flags().StringP("protocol", "p", string(protocol.Home), "layout of datagrams received directly from terminals")
	keep := c.Flags().Int("keep", 10000, "number of events kept in memory")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), *listenAddress, protocol.Name(*proto), *keep)
	}

	if err := c.Execute(); err != nil {
		log.Fatalf("%++v", err)
	}
}

// parser turns received datagrams into events.
type parser struct {
	decoder *protocol.Decoder
	proto   protocol.Name
}

func newParser(proto protocol.Name) *parser {
	return &parser{decoder: protocol.NewDecoder(proto, zap.NewNop()), proto: proto}
}

// Parse accepts a forwarded datagram, or else decodes packet as sent by a
// terminal.
func (p *parser) Parse(packet *listener.Packet) Forwarded {
	if bytes.HasPrefix(packet.Payload, []byte(destination.ForwardMagic)) {
		if forwarded, err := destination.ParseForwarded(packet.Payload, packet.ReceivedAt); err == nil {
			events := make(Forwarded, 0, len(forwarded.Records))
			for _, r := range forwarded.Records {
				events = append(events, &Event{Record: r, Instance: forwarded.Instance})
			}
			return events
		}
	}
	ev := &ekeyd.Event{
		SenderIP:   packet.SenderIP(),
		Protocol:   p.proto,
		ReceivedAt: packet.ReceivedAt,
		Payload:    p.decoder.Decode(packet.Payload),
	}
	return Forwarded{{Record: archive.NewRecord(ev)}}
}

func run(ctx context.Context, address string, proto protocol.Name, keep int) error {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return errs.Wrap(err)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return errs.Errorf("invalid port %q", portString)
	}
	endpoint, err := transport.Acquire(ctx, host, uint16(port))
	if err != nil {
		return err
	}
	defer func() { _ = endpoint.Close() }()

	parse := newParser(proto)
	app := tea.NewProgram(ui.NewKillable(NewPanel(NewRepo(keep))), tea.WithAltScreen(), tea.WithContext(ctx))

	ctx, cancel := context.WithCancel(ctx)
	var eg errgroup.Group
	eg.Go(func() error {
		for ctx.Err() == nil {
			payload, source, err := endpoint.Receive(time.Second)
			if err != nil {
				if errors.Is(err, transport.ErrWaitTimeout) || errors.Is(err, transport.ErrEmptyDatagram) {
					continue
				}
				return err
			}
			app.Send(parse.Parse(&listener.Packet{Payload: payload, Source: source, ReceivedAt: time.Now()}))
		}
		return nil
	})

	eg.Go(func() error {
		_, err := app.Run()
		cancel()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return eg.Wait()
}
