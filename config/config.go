// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package config loads the daemon settings from flags, EKEYD_* environment
// variables and an optional ekeyd.yaml file.
package config

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs/v2"
	"go.uber.org/zap/zapcore"

	"storj.io/ekeyd/listener"
	"storj.io/ekeyd/protocol"
)

// EnvPrefix prefixes the environment variable of every key.
const EnvPrefix = "EKEYD"

// Keys, usable as flag names, config file keys and (upper cased, with '-'
// replaced by '_') environment variables.
const (
	KeyConfig        = "config"
	KeyListenAddress = "listenaddress"
	KeyListenPort    = "listenport"
	KeyProtocol      = "protocol"
	KeyDestination   = "destination"
	KeyDebugAddr     = "debug-addr"
	KeyPcapIface     = "pcap-iface"
	KeyLogLevel      = "log-level"
	KeyRetryInterval = "retry-interval"
	KeyPollInterval  = "poll-interval"
)

// Config is the validated daemon configuration.
type Config struct {
	ListenAddress string
	ListenPort    uint16
	Protocol      protocol.Name
	Destinations  []string
	DebugAddr     string
	PcapIface     string
	LogLevel      zapcore.Level
	RetryInterval time.Duration
	PollInterval  time.Duration
}

// RegisterFlags adds the daemon flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "path of the config file (default: ./ekeyd.yaml when present)")
	fs.String(KeyListenAddress, "", "address or interface name to bind to (default: this host's address)")
	fs.Int(KeyListenPort, 0, "UDP port terminals send to")
	fs.String(KeyProtocol, string(protocol.Home), "datagram layout: rare, home or multi")
	fs.StringSlice(KeyDestination, []string{"stdout"}, "where events go, e.g. stdout, file:base=DIR, udp:addr=HOST:PORT, bigquery:project=..,dataset=..; repeatable")
	fs.String(KeyDebugAddr, "", "HTTP address serving /metrics, empty disables it")
	fs.String(KeyPcapIface, "", "capture datagrams passively on this interface instead of binding a socket (linux only)")
	fs.String(KeyLogLevel, "info", "log level: debug, info, warn or error")
	fs.Duration(KeyRetryInterval, listener.DefaultInterval, "delay before binding again after a failure")
	fs.Duration(KeyPollInterval, listener.DefaultInterval, "longest wait for a datagram before checking for shutdown")
}

// NewViper returns a viper instance reading the environment and the
// ekeyd.yaml config file, bound to fs.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("ekeyd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errs.Wrap(err)
	}
	return v, nil
}

// Load reads the config file, if any, and validates the merged settings.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errs.Wrap(err)
		}
	}
	return FromViper(v)
}

// FromViper validates the settings held by v.
func FromViper(v *viper.Viper) (cfg Config, err error) {
	port := v.GetInt(KeyListenPort)
	if port < 0 || port > math.MaxUint16 {
		return cfg, errs.Errorf("%s %d does not fit in 0-65535", KeyListenPort, port)
	}
	cfg.ListenPort = uint16(port)

	cfg.ListenAddress = strings.TrimSpace(v.GetString(KeyListenAddress))
	cfg.Protocol = protocol.Name(strings.ToLower(strings.TrimSpace(v.GetString(KeyProtocol))))
	cfg.DebugAddr = v.GetString(KeyDebugAddr)
	cfg.PcapIface = v.GetString(KeyPcapIface)

	for _, dest := range v.GetStringSlice(KeyDestination) {
		if dest = strings.TrimSpace(dest); dest != "" {
			cfg.Destinations = append(cfg.Destinations, dest)
		}
	}
	if len(cfg.Destinations) == 0 {
		cfg.Destinations = []string{"stdout"}
	}

	if err := cfg.LogLevel.Set(v.GetString(KeyLogLevel)); err != nil {
		return cfg, errs.Errorf("invalid %s %q", KeyLogLevel, v.GetString(KeyLogLevel))
	}

	if cfg.RetryInterval, err = duration(v, KeyRetryInterval); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = duration(v, KeyPollInterval); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d := v.GetDuration(key)
	if d < 0 {
		return 0, errs.Errorf("%s must not be negative", key)
	}
	if d == 0 {
		d = listener.DefaultInterval
	}
	return d, nil
}

// Listener returns the listener settings.
func (c Config) Listener() listener.Config {
	return listener.Config{
		Address:       c.ListenAddress,
		Port:          c.ListenPort,
		Protocol:      c.Protocol,
		RetryInterval: c.RetryInterval,
		PollInterval:  c.PollInterval,
	}
}
