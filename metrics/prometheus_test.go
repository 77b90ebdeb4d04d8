// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPrometheusEndpoint(t *testing.T) {
	registry := monkit.NewRegistry()
	scope := registry.ScopeNamed("storj.io/ekeyd/protocol")
	scope.Counter("length_mismatch", monkit.NewSeriesTag("protocol", "home")).Inc(3)

	server := httptest.NewServer(NewPrometheusEndpoint(registry))
	defer server.Close()

	body := get(t, server.URL)
	require.Contains(t, body, "# TYPE length_mismatch gauge")
	var found bool
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "length_mismatch{") &&
			strings.Contains(line, `protocol="home"`) &&
			strings.Contains(line, `field="value"`) {
			require.True(t, strings.HasSuffix(line, " 3"), line)
			found = true
		}
	}
	require.True(t, found, body)
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "", sanitize(""))
	require.Equal(t, "_9lives", sanitize("9lives"))
	require.Equal(t, "storj_io_ekeyd", sanitize("storj.io/ekeyd"))
}

func TestServeListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	registry := monkit.NewRegistry()
	registry.ScopeNamed("test").Counter("datagrams").Inc(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, zaptest.NewLogger(t), listener, registry) }()

	require.Eventually(t, func() bool {
		return strings.Contains(get(t, "http://"+listener.Addr().String()+"/metrics"), "datagrams")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func get(t *testing.T, url string) string {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
