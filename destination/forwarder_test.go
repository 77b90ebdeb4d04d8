// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package destination

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/ekeyd"
	"storj.io/ekeyd/protocol"
)

func TestUDPForwarder(t *testing.T) {
	collector, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer func() { _ = collector.Close() }()

	forwarder := NewUDPForwarder(zaptest.NewLogger(t), collector.LocalAddr().String())
	forwarder.Instance = "gate-1"
	forwarder.FlushInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go forwarder.Run(ctx)

	home, _ := protocol.DecodeHome([]byte("1_0046_4_80156809150025_1_2"))
	forwarder.Submit(&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, ReceivedAt: time.Now(), Payload: home})

	require.NoError(t, collector.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 65536)
	n, _, err := collector.ReadFromUDP(buf)
	require.NoError(t, err)

	forwarded, err := ParseForwarded(buf[:n], time.Now())
	require.NoError(t, err)
	require.Equal(t, "gate-1", forwarded.Instance)
	require.Len(t, forwarded.Records, 1)

	record := forwarded.Records[0]
	require.Equal(t, "10.0.0.7", record.SenderIP)
	require.Equal(t, "home", record.Protocol)
	require.Equal(t, "Relays2", record.Payload["relay"])
	require.EqualValues(t, 46, record.Payload["userId"])
	require.WithinDuration(t, time.Now(), record.ReceivedAt, 5*time.Second)
}

func TestUDPForwarderSplitsPackets(t *testing.T) {
	forwarder := NewUDPForwarder(nil, "127.0.0.1:1")
	p, err := forwarder.newOutgoingPacket()
	require.NoError(t, err)

	multi, _ := protocol.DecodeMulti([]byte("10003JOSEF----17280156809150025GAR-1-"))
	ev := &ekeyd.Event{SenderIP: "10.0.0.8", Protocol: protocol.Multi, ReceivedAt: time.Now(), Payload: multi}

	var full bool
	for i := 0; i < 20 && !full; i++ {
		full, err = p.addEvent(ev)
		require.NoError(t, err)
	}
	require.True(t, full)
	require.Greater(t, p.events, 1)

	data, err := p.finalize()
	require.NoError(t, err)
	forwarded, err := ParseForwarded(data, time.Now())
	require.NoError(t, err)
	require.Len(t, forwarded.Records, p.events)
}

func TestParseForwardedRejects(t *testing.T) {
	_, err := ParseForwarded([]byte("XX"), time.Now())
	require.Error(t, err)
	_, err = ParseForwarded([]byte("EKnot zlib"), time.Now())
	require.Error(t, err)
}

func TestParseForwardedKeepsEmptyPayload(t *testing.T) {
	forwarder := NewUDPForwarder(nil, "127.0.0.1:1")
	p, err := forwarder.newOutgoingPacket()
	require.NoError(t, err)

	short, _ := protocol.DecodeHome([]byte("short"))
	_, err = p.addEvent(&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, ReceivedAt: time.Now(), Payload: short})
	require.NoError(t, err)
	_, err = p.addEvent(&ekeyd.Event{SenderIP: "10.0.0.8", Protocol: "ekey", ReceivedAt: time.Now()})
	require.NoError(t, err)

	data, err := p.finalize()
	require.NoError(t, err)
	forwarded, err := ParseForwarded(data, time.Now())
	require.NoError(t, err)
	require.Len(t, forwarded.Records, 2)

	require.NotNil(t, forwarded.Records[0].Payload)
	require.Empty(t, forwarded.Records[0].Payload)
	require.Nil(t, forwarded.Records[1].Payload)
}
