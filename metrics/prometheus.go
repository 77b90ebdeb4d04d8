// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package metrics exposes the monkit registry over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
)

// PrometheusEndpoint renders a monkit registry in the Prometheus text
// exposition format. Each scraper identified by the output-id query
// parameter gets its own delta view of counters.
type PrometheusEndpoint struct {
	registryMu   sync.Mutex
	registries   map[string]*monkit.Registry
	baseRegistry *monkit.Registry
}

var _ http.Handler = (*PrometheusEndpoint)(nil)

// NewPrometheusEndpoint creates an endpoint for registry.
func NewPrometheusEndpoint(registry *monkit.Registry) *PrometheusEndpoint {
	return &PrometheusEndpoint{
		baseRegistry: registry,
		registries:   map[string]*monkit.Registry{},
	}
}

// ServeHTTP implements http.Handler.
func (server *PrometheusEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// All lines of one metric have to be written as a single group, so
	// everything is collected before writing.
	data := make(map[string][]string)
	var components []string

	server.registryForRequest(r).Stats(func(key monkit.SeriesKey, field string, val float64) {
		components = components[:0]

		measurement := sanitize(key.Measurement)
		for tag, tagVal := range key.Tags.All() {
			components = append(components,
				fmt.Sprintf("%s=%q", sanitize(tag), sanitize(tagVal)))
		}
		sort.Strings(components)
		components = append(components,
			fmt.Sprintf("field=%q", sanitize(field)))

		data[measurement] = append(data[measurement],
			fmt.Sprintf("{%s} %g", strings.Join(components, ","), val))
	})

	measurements := make([]string, 0, len(data))
	for measurement := range data {
		measurements = append(measurements, measurement)
	}
	sort.Strings(measurements)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, measurement := range measurements {
		_, _ = fmt.Fprintln(w, "# TYPE", measurement, "gauge")
		for _, sample := range data[measurement] {
			_, _ = fmt.Fprintf(w, "%s%s\n", measurement, sample)
		}
	}
}

func (server *PrometheusEndpoint) registryForRequest(r *http.Request) *monkit.Registry {
	outputID := r.URL.Query().Get("output-id")
	server.registryMu.Lock()
	defer server.registryMu.Unlock()
	reg, found := server.registries[outputID]
	if !found {
		reg = server.baseRegistry.WithTransformers(monkit.NewDeltaTransformer())
		server.registries[outputID] = reg
	}
	return reg
}

// sanitize makes val match [a-zA-Z_][a-zA-Z0-9_]*.
func sanitize(val string) string {
	if val == "" {
		return ""
	}
	if '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}

// Serve serves /metrics for registry on addr until ctx is canceled.
func Serve(ctx context.Context, log *zap.Logger, addr string, registry *monkit.Registry) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.Wrap(err)
	}
	return ServeListener(ctx, log, listener, registry)
}

// ServeListener is like Serve with an existing listener.
func ServeListener(ctx context.Context, log *zap.Logger, listener net.Listener, registry *monkit.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", NewPrometheusEndpoint(registry))

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", zap.Stringer("address", listener.Addr()))
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errs.Wrap(err)
}
