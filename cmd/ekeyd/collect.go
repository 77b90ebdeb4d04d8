// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd/archive"
	"storj.io/ekeyd/bigquery"
	"storj.io/ekeyd/destination"
	"storj.io/ekeyd/listener"
	"storj.io/ekeyd/transport"
)

// forwardedSink handles the decoded content of one forwarded datagram.
type forwardedSink func(forwarded *destination.Forwarded) error

func newCollectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Receive events forwarded by other ekeyd instances with the udp destination",
		Args:  cobra.NoArgs,
	}
	addr := cmd.Flags().String("addr", ":9002", "UDP address to receive forwarded datagrams on")
	workers := cmd.Flags().Int("workers", runtime.NumCPU(), "number of workers")
	bq := cmd.Flags().String("bigquery", "", "store records in BigQuery: project=...,dataset=...[,prefix=...,credentialsPath=...]")
	printRecords := cmd.Flags().Bool("print", false, "print received records as JSON lines")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		ctx := cmd.Context()

		var sinks []forwardedSink
		if *printRecords {
			sinks = append(sinks, printSink(cmd.OutOrStdout()))
		}
		if *bq != "" {
			params := destination.Params{}
			for _, param := range strings.Split(*bq, ",") {
				key, value, found := strings.Cut(param, "=")
				if !found {
					return errs.Errorf("bigquery parameters should be defined as key=value and not %q", param)
				}
				params[key] = value
			}
			cfg, err := bigquery.ParseParams(params)
			if err != nil {
				return err
			}
			dest, err := cfg.Open(ctx, log.Named("bigquery"))
			if err != nil {
				return err
			}
			defer func() { _ = dest.Close() }()
			sinks = append(sinks, func(forwarded *destination.Forwarded) error {
				dest.SaveForwarded(forwarded)
				return nil
			})
		}
		if len(sinks) == 0 {
			return errs.Errorf("nothing to do, use --print or --bigquery")
		}

		return collect(ctx, log, *addr, *workers, sinks...)
	}
	return cmd
}

func printSink(w io.Writer) forwardedSink {
	var mu sync.Mutex
	return func(forwarded *destination.Forwarded) error {
		mu.Lock()
		defer mu.Unlock()
		return archive.WriteJSON(w, forwarded.Records)
	}
}

// collect receives forwarded datagrams on addr and hands them to sinks until
// ctx is canceled.
func collect(ctx context.Context, log *zap.Logger, addr string, workers int, sinks ...forwardedSink) error {
	host, portString, err := net.SplitHostPort(addr)
	if err != nil {
		return errs.Wrap(err)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return errs.Errorf("invalid port %q", portString)
	}
	if host == "" {
		host = "0.0.0.0"
	}

	endpoint, err := transport.Acquire(ctx, host, uint16(port))
	if err != nil {
		return err
	}
	defer func() { _ = endpoint.Close() }()
	log.Info("collecting", zap.Stringer("address", endpoint.LocalAddr()))

	queue := make(chan *listener.Packet, workers*2)
	var eg errgroup.Group
	for i := 0; i < max(workers, 1); i++ {
		eg.Go(func() error {
			for packet := range queue {
				forwarded, err := destination.ParseForwarded(packet.Payload, packet.ReceivedAt)
				if err != nil {
					log.Warn("invalid forwarded datagram", zap.Stringer("source", packet.Source), zap.Error(err))
					continue
				}
				for _, sink := range sinks {
					if err := sink(forwarded); err != nil {
						log.Error("failed to process forwarded datagram", zap.Error(err))
					}
				}
			}
			return nil
		})
	}

	for ctx.Err() == nil {
		payload, source, err := endpoint.Receive(time.Second)
		switch {
		case err == nil:
			queue <- &listener.Packet{Payload: payload, Source: source, ReceivedAt: time.Now()}
		case errors.Is(err, transport.ErrWaitTimeout), errors.Is(err, transport.ErrEmptyDatagram):
		default:
			log.Error("failed to read udp datagram", zap.Error(err))
		}
	}
	log.Info("shutting down")
	close(queue)
	return eg.Wait()
}
