// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package capture

import (
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/zeebo/errs/v2"
)

// Writer records UDP datagrams as ethernet frames in pcap format.
type Writer struct {
	pcap *pcapgo.Writer
	buf  gopacket.SerializeBuffer
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pcap := pcapgo.NewWriter(w)
	if err := pcap.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, errs.Wrap(err)
	}
	return &Writer{pcap: pcap, buf: gopacket.NewSerializeBuffer()}, nil
}

// WriteDatagram records one datagram from src to dst.
func (w *Writer) WriteDatagram(src, dst *net.UDPAddr, payload []byte, at time.Time) error {
	eth := &layers.Ethernet{
		SrcMAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(src.Port), DstPort: layers.UDPPort(dst.Port)}

	var network gopacket.SerializableLayer
	if src4, dst4 := src.IP.To4(), dst.IP.To4(); src4 != nil && dst4 != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: src4, DstIP: dst4}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return errs.Wrap(err)
		}
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP, SrcIP: src.IP.To16(), DstIP: dst.IP.To16()}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return errs.Wrap(err)
		}
		network = ip
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(w.buf, opts, eth, network, udp, gopacket.Payload(payload)); err != nil {
		return errs.Wrap(err)
	}

	data := w.buf.Bytes()
	return errs.Wrap(w.pcap.WritePacket(gopacket.CaptureInfo{
		Timestamp:     at,
		CaptureLength: len(data),
		Length:        len(data),
	}, data))
}
