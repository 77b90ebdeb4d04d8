// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"storj.io/ekeyd"
	"storj.io/ekeyd/archive"
	"storj.io/ekeyd/protocol"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	dest, err := Create(ctx, log, "stdout", nil)
	require.NoError(t, err)
	require.IsType(t, &JSONLines{}, dest)

	dest, err = Create(ctx, log, "log:level=debug", nil)
	require.NoError(t, err)
	require.IsType(t, &Log{}, dest)

	dest, err = Create(ctx, log, "file:base="+t.TempDir()+"|batch:batchSize=10,flushInterval=1s", nil)
	require.NoError(t, err)
	require.IsType(t, &BatchQueue{}, dest)

	dest, err = Create(ctx, log, "udp:addr=127.0.0.1:9002,instance=gate|parallel:workers=2", nil)
	require.NoError(t, err)
	require.IsType(t, &Parallel{}, dest)

	m := &mockDestination{}
	dest, err = Create(ctx, log, "mock:name=x", map[string]Factory{
		"mock": func(ctx context.Context, log *zap.Logger, params Params) (ekeyd.Destination, error) {
			require.Equal(t, Params{"name": "x"}, params)
			return m, nil
		},
	})
	require.NoError(t, err)
	require.Same(t, m, dest)
}

func TestCreateErrors(t *testing.T) {
	ctx := context.Background()
	for _, config := range []string{
		"",
		"nope",
		"batch:batchSize=1",
		"stdout|stdout",
		"file",
		"file:base=/tmp,color=red",
		"udp:addr",
		"udp:addr=127.0.0.1:1,maxBytes=lots",
		"stdout|batch:flushInterval=soon",
		"log:level=loud",
	} {
		_, err := Create(ctx, nil, config, nil)
		require.Error(t, err, config)
	}
}

func TestJSONLines(t *testing.T) {
	var out bytes.Buffer
	dest := NewJSONLines(nil, &out)
	home, _ := protocol.DecodeHome([]byte("1_0000_-_80156809150025_2_-"))
	dest.Submit(&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, Payload: home}, &ekeyd.Event{SenderIP: "10.0.0.8"})

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	require.JSONEq(t, `{"senderIp":"10.0.0.7","payload":{"packetType":1,"userId":0,"fingerId":-2,
		"finger":"Unknown Finger","serialNr":"80156809150025","action":"refuse","relaysId":-2,"relay":"none"}}`, string(lines[0]))
	require.JSONEq(t, `{"senderIp":"10.0.0.8"}`, string(lines[1]))
}

func TestLogDestination(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dest := NewLog(zap.New(core), zapcore.InfoLevel)
	dest.Submit(&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: "ekey"})

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	require.Equal(t, "10.0.0.7", entries[0].ContextMap()["senderIp"])
	require.NotContains(t, entries[0].ContextMap(), "payload")

	quiet := NewLog(zap.New(core), zapcore.DebugLevel)
	quiet.Submit(&ekeyd.Event{SenderIP: "10.0.0.8"})
	require.Equal(t, 1, logs.Len())
}

func TestArchiveDestination(t *testing.T) {
	dir := t.TempDir()
	dest := NewArchive(zaptest.NewLogger(t), dir, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dest.Run(ctx)
		close(done)
	}()

	multi, _ := protocol.DecodeMulti([]byte("10003JOSEF----17280156809150025GAR-1-"))
	dest.Submit(&ekeyd.Event{SenderIP: "10.0.0.8", Protocol: protocol.Multi, ReceivedAt: time.Now(), Payload: multi})
	cancel()
	<-done

	var records []*archive.Record
	require.NoError(t, archive.Walk(dir, func(r *archive.Record) error {
		records = append(records, r)
		return nil
	}))
	require.Len(t, records, 1)
	require.Equal(t, "JOSEF", records[0].Payload["username"])
}
