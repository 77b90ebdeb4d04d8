// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storj.io/ekeyd"
)

// Params are the key=value parameters of one destination layer.
type Params map[string]string

// Int returns the integer parameter key, or def when it is missing.
func (p Params) Int(key string, def int) (int, error) {
	value, ok := p[key]
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, errs.Errorf("%s should be a number and not %q", key, value)
	}
	return v, nil
}

// Duration returns the duration parameter key, or def when it is missing.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	value, ok := p[key]
	if !ok {
		return def, nil
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return 0, errs.Errorf("%s should be a duration and not %q", key, value)
	}
	return v, nil
}

// Require returns the parameter key or an error naming it.
func (p Params) Require(key string) (string, error) {
	value := p[key]
	if value == "" {
		return "", errs.Errorf("parameter %s is required", key)
	}
	return value, nil
}

// Only fails when params holds a key not in allowed.
func (p Params) Only(typeName string, allowed ...string) error {
next:
	for key := range p {
		for _, a := range allowed {
			if key == a {
				continue next
			}
		}
		return errs.Errorf("unknown parameter %q for %s destination, use %s", key, typeName, strings.Join(allowed, "/"))
	}
	return nil
}

// Factory creates a sink from its parameters.
type Factory func(ctx context.Context, log *zap.Logger, params Params) (ekeyd.Destination, error)

// Stdout is where the stdout destination writes. Tests replace it.
var Stdout io.Writer = os.Stdout

// Create builds a destination from a configuration string. Layers are
// separated by '|'. The first layer is a sink, the following layers wrap it.
// Example configurations:
//
//	stdout
//	log:level=debug
//	file:base=/var/lib/ekeyd
//	udp:addr=collector:9002,instance=gate-1
//	file:base=/var/lib/ekeyd|batch:queueSize=1000,batchSize=100,flushInterval=10s
//	bigquery:project=...,dataset=...|parallel:workers=4|batch:batchSize=500
//
// extra adds sinks implemented outside this package, keyed by type name.
func Create(ctx context.Context, log *zap.Logger, config string, extra map[string]Factory) (ekeyd.Destination, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var lastLayer func() (ekeyd.Destination, error)
	for _, layer := range strings.Split(config, "|") {
		layer = strings.TrimSpace(layer)
		if layer == "" {
			continue
		}
		typeName, params, err := parseLayer(layer)
		if err != nil {
			return nil, err
		}

		switch typeName {
		case "parallel":
			if lastLayer == nil {
				return nil, errs.Errorf("parallel needs a destination to wrap")
			}
			if err := params.Only(typeName, "workers"); err != nil {
				return nil, err
			}
			workers, err := params.Int("workers", 1)
			if err != nil {
				return nil, err
			}
			ll := lastLayer
			lastLayer = func() (ekeyd.Destination, error) {
				return NewParallel(log.Named("parallel"), ll, workers), nil
			}

		case "batch":
			if lastLayer == nil {
				return nil, errs.Errorf("batch needs a destination to wrap")
			}
			if err := params.Only(typeName, "queueSize", "batchSize", "flushInterval"); err != nil {
				return nil, err
			}
			queueSize, err := params.Int("queueSize", defaultQueueSize)
			if err != nil {
				return nil, err
			}
			batchSize, err := params.Int("batchSize", defaultBatchSize)
			if err != nil {
				return nil, err
			}
			flushInterval, err := params.Duration("flushInterval", defaultFlushInterval)
			if err != nil {
				return nil, err
			}
			target, err := lastLayer()
			if err != nil {
				return nil, err
			}
			lastLayer = func() (ekeyd.Destination, error) {
				return NewBatchQueue(target, queueSize, batchSize, flushInterval), nil
			}

		default:
			if lastLayer != nil {
				return nil, errs.Errorf("%s must be the first layer", typeName)
			}
			factory, err := lookupFactory(typeName, extra)
			if err != nil {
				return nil, err
			}
			lastLayer = func() (ekeyd.Destination, error) {
				return factory(ctx, log.Named(typeName), params)
			}
		}
	}
	if lastLayer == nil {
		return nil, errs.Errorf("no destination is defined")
	}
	return lastLayer()
}

func parseLayer(layer string) (typeName string, params Params, err error) {
	typeName, rest, _ := strings.Cut(layer, ":")
	params = Params{}
	for _, param := range strings.Split(rest, ",") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		key, value, found := strings.Cut(param, "=")
		if !found {
			return "", nil, errs.Errorf("destination parameters should be defined in the form type:param=value,... and not %q", layer)
		}
		params[key] = value
	}
	return strings.TrimSpace(typeName), params, nil
}

func lookupFactory(typeName string, extra map[string]Factory) (Factory, error) {
	if factory, ok := extra[typeName]; ok {
		return factory, nil
	}
	switch typeName {
	case "stdout":
		return func(ctx context.Context, log *zap.Logger, params Params) (ekeyd.Destination, error) {
			if err := params.Only(typeName); err != nil {
				return nil, err
			}
			return NewJSONLines(log, Stdout), nil
		}, nil
	case "log":
		return func(ctx context.Context, log *zap.Logger, params Params) (ekeyd.Destination, error) {
			if err := params.Only(typeName, "level"); err != nil {
				return nil, err
			}
			level := zapcore.InfoLevel
			if value, ok := params["level"]; ok {
				if err := level.Set(value); err != nil {
					return nil, errs.Errorf("invalid log level %q", value)
				}
			}
			return NewLog(log, level), nil
		}, nil
	case "file":
		return func(ctx context.Context, log *zap.Logger, params Params) (ekeyd.Destination, error) {
			if err := params.Only(typeName, "base", "closeInterval"); err != nil {
				return nil, err
			}
			base, err := params.Require("base")
			if err != nil {
				return nil, err
			}
			closeInterval, err := params.Duration("closeInterval", defaultFlushInterval)
			if err != nil {
				return nil, err
			}
			return NewArchive(log, base, closeInterval), nil
		}, nil
	case "udp":
		return func(ctx context.Context, log *zap.Logger, params Params) (ekeyd.Destination, error) {
			if err := params.Only(typeName, "addr", "instance", "maxBytes", "flushInterval"); err != nil {
				return nil, err
			}
			addr, err := params.Require("addr")
			if err != nil {
				return nil, err
			}
			forwarder := NewUDPForwarder(log, addr)
			if instance, ok := params["instance"]; ok {
				forwarder.Instance = instance
			}
			if forwarder.MaxUncompressedBytes, err = params.Int("maxBytes", defaultMaxUncompressedBytes); err != nil {
				return nil, err
			}
			if forwarder.FlushInterval, err = params.Duration("flushInterval", defaultFlushInterval); err != nil {
				return nil, err
			}
			return forwarder, nil
		}, nil
	}
	return nil, errs.Errorf("unknown destination type %q", typeName)
}
