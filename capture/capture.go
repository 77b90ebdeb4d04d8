// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package capture reads ekey datagrams from captured ethernet frames instead
// of a bound socket: pcap and pcapng files, or a live interface on Linux.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs/v2"

	"storj.io/ekeyd/listener"
)

var mon = monkit.Package()

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Source is a stream of captured frames.
type Source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader extracts the UDP datagrams sent to one port from a Source.
type Reader struct {
	packets *gopacket.PacketSource
	port    uint16
}

// NewReader creates a reader for datagrams sent to port.
func NewReader(source Source, port uint16) *Reader {
	packets := gopacket.NewPacketSource(source, source.LinkType())
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	return &Reader{packets: packets, port: port}
}

// Next returns the next matching datagram. It returns io.EOF at the end of a
// file.
func (r *Reader) Next() (*listener.Packet, error) {
	for {
		packet, err := r.packets.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, errs.Wrap(err)
		}

		udp, _ := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if udp == nil || uint16(udp.DstPort) != r.port {
			continue
		}

		source := &net.UDPAddr{Port: int(udp.SrcPort)}
		if ip4, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ip4 != nil {
			source.IP = ip4.SrcIP
		} else if ip6, _ := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ip6 != nil {
			source.IP = ip6.SrcIP
		} else {
			continue
		}

		receivedAt := packet.Metadata().Timestamp
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}

		mon.Counter("captured_datagrams").Inc(1)
		return &listener.Packet{
			Payload:    append([]byte(nil), udp.Payload...),
			Source:     source,
			ReceivedAt: receivedAt,
		}, nil
	}
}

// Run hands every matching datagram to handle until the source is exhausted
// or ctx is canceled. Reaching the end of a file is not an error.
func (r *Reader) Run(ctx context.Context, handle func(*listener.Packet)) (err error) {
	defer mon.Task()(&ctx)(&err)
	for ctx.Err() == nil {
		packet, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		handle(packet)
	}
	return nil
}

// File is an opened capture file.
type File struct {
	Source
	file *os.File
}

// Close closes the underlying file.
func (f *File) Close() error { return errs.Wrap(f.file.Close()) }

// OpenFile opens a pcap or pcapng file.
func OpenFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	source, err := NewFileSource(fh)
	if err != nil {
		_ = fh.Close()
		return nil, errs.Errorf("%s: %v", path, err)
	}
	return &File{Source: source, file: fh}, nil
}

// NewFileSource detects the capture format of r and returns a matching
// Source.
func NewFileSource(r io.Reader) (Source, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, errs.Wrap(err)
		}
		return ng, nil
	}
	pcap, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return pcap, nil
}
