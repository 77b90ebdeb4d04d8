// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"github.com/spf13/cobra"

	"storj.io/ekeyd/capture"
	"storj.io/ekeyd/listener"
)

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Decode the datagrams of a pcap or pcapng capture file",
		Long: "Decode every UDP datagram sent to --listenport in a capture file with --protocol " +
			"and publish the events to the configured destinations.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			file, err := capture.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()

			registry, err := newRegistry(cmd.Context(), log, cfg.Destinations)
			if err != nil {
				return err
			}
			l := listener.New(log.Named("listener"), cfg.Listener(), registry)
			return withDestinations(registry, func() error {
				return capture.NewReader(file, cfg.ListenPort).Run(cmd.Context(), l.Handle)
			})
		},
	}
}
