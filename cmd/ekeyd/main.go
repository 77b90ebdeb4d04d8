// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Command ekeyd receives datagrams from ekey finger scanners and publishes
// the decoded events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"storj.io/ekeyd"
	"storj.io/ekeyd/bigquery"
	"storj.io/ekeyd/capture"
	"storj.io/ekeyd/config"
	"storj.io/ekeyd/destination"
	"storj.io/ekeyd/listener"
	"storj.io/ekeyd/metrics"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ekeyd",
		Short:         "Receive ekey finger scanner datagrams and publish them as events",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())
	version := root.Flags().BoolP("version", "v", false, "print version information")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		if *version {
			printVersion(cmd)
			return nil
		}
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return run(cmd.Context(), log, cfg)
	}

	root.AddCommand(newReplayCommand(), newArchiveCommand(), newCollectCommand())
	return root
}

func printVersion(cmd *cobra.Command) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	cmd.Println(bi.Main.Path, bi.Main.Version)
	for _, s := range bi.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			cmd.Println(s.Key + "=" + s.Value)
		}
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// newLogger returns a JSON logger, or a console logger at debug level.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// extraDestinations are the sinks living outside the destination package.
var extraDestinations = map[string]destination.Factory{
	"bigquery": bigquery.Factory,
	"bq":       bigquery.Factory,
}

// newRegistry builds every configured destination chain.
func newRegistry(ctx context.Context, log *zap.Logger, specs []string) (*ekeyd.Registry, error) {
	registry := ekeyd.NewRegistry()
	for _, spec := range specs {
		dest, err := destination.Create(ctx, log.Named("destination"), spec, extraDestinations)
		if err != nil {
			return nil, err
		}
		registry.AddDestination(dest)
	}
	return registry, nil
}

// withDestinations runs registry until fn returned, so events submitted
// during fn are still delivered.
func withDestinations(registry *ekeyd.Registry, fn func() error) error {
	ctx, cancel := context.WithCancel(context.Background())
	var eg errgroup.Group
	eg.Go(func() error {
		registry.Run(ctx)
		return nil
	})
	err := fn()
	cancel()
	_ = eg.Wait()
	return err
}

func run(ctx context.Context, log *zap.Logger, cfg config.Config) error {
	registry, err := newRegistry(ctx, log, cfg.Destinations)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.DebugAddr != "" {
		eg.Go(func() error {
			return metrics.Serve(ctx, log.Named("metrics"), cfg.DebugAddr, monkit.Default)
		})
	}

	eg.Go(func() error {
		return withDestinations(registry, func() error {
			if cfg.PcapIface != "" {
				return runCapture(ctx, log, cfg, registry)
			}
			return runNode(ctx, log, cfg, registry)
		})
	})
	return eg.Wait()
}

func runNode(ctx context.Context, log *zap.Logger, cfg config.Config, output ekeyd.Destination) error {
	node := listener.NewNode(log, output)
	node.Init(cfg.Listener())
	node.Start()

	<-ctx.Done()
	log.Info("shutting down")
	node.Stop()
	return node.WaitForStop()
}

func runCapture(ctx context.Context, log *zap.Logger, cfg config.Config, output ekeyd.Destination) error {
	iface, err := capture.OpenInterface(cfg.PcapIface)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = iface.Close()
	}()

	l := listener.New(log.Named("listener"), cfg.Listener(), output)
	log.Info("capturing", zap.String("interface", cfg.PcapIface), zap.Uint16("port", cfg.ListenPort))
	err = capture.NewReader(iface, cfg.ListenPort).Run(ctx, l.Handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
