// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Command ekey-sender sends test datagrams the way ekey terminals do.
package main

import (
	"context"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs/v2"

	"storj.io/ekeyd/capture"
	"storj.io/ekeyd/protocol"
)

func main() {
	c := cobra.Command{
		Use:   "ekey-sender [PAYLOAD ...]",
		Short: "Send test ekey datagrams. Without payloads random samples are sent.",
	}
	dest := c.Flags().StringP("destination", "d", "localhost:56000", "UDP host and port of the listener")
	proto := c.Flags().StringP("protocol", "p", string(protocol.Home), "layout of generated samples")
	count := c.Flags().IntP("count", "n", 1, "number of samples to send, 0 sends until interrupted")
	interval := c.Flags().DurationP("interval", "i", 100*time.Millisecond, "delay between datagrams")
	serial := c.Flags().String("serial", "80156809150025", "14 digit scanner serial number used in samples")
	pcapOut := c.Flags().String("pcap-out", "", "also write the datagrams to this pcap file")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		s := &sender{
			dest:     *dest,
			interval: *interval,
		}
		if *pcapOut != "" {
			fh, err := os.Create(*pcapOut)
			if err != nil {
				return errs.Wrap(err)
			}
			defer func() { _ = fh.Close() }()
			if s.pcap, err = capture.NewWriter(fh); err != nil {
				return err
			}
		}

		payloads := make(chan []byte)
		go func() {
			defer close(payloads)
			if len(args) > 0 {
				for _, arg := range args {
					payloads <- []byte(arg)
				}
				return
			}
			r := rand.New(rand.NewSource(time.Now().UnixNano()))
			for i := 0; *count == 0 || i < *count; i++ {
				payload, err := Sample(r, protocol.Name(*proto), *serial)
				if err != nil {
					log.Println(err)
					return
				}
				select {
				case payloads <- payload:
				case <-cmd.Context().Done():
					return
				}
			}
		}()
		return s.send(cmd.Context(), payloads)
	}

	if err := c.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%++v", err)
	}
}

type sender struct {
	dest     string
	interval time.Duration
	pcap     *capture.Writer
}

// send writes every payload as one datagram to the destination.
func (s *sender) send(ctx context.Context, payloads <-chan []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", s.dest)
	if err != nil {
		return errs.Wrap(err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() { _ = conn.Close() }()
	local := conn.LocalAddr().(*net.UDPAddr)

	first := true
	for payload := range payloads {
		if !first {
			select {
			case <-time.After(s.interval):
			case <-ctx.Done():
				return nil
			}
		}
		first = false

		if _, err := conn.Write(payload); err != nil {
			return errs.Wrap(err)
		}
		if s.pcap != nil {
			if err := s.pcap.WriteDatagram(local, raddr, payload, time.Now()); err != nil {
				return err
			}
		}
		log.Printf("sent %q to %s", payload, raddr)
	}
	return nil
}
