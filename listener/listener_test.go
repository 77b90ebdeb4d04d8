// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package listener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"storj.io/ekeyd"
	"storj.io/ekeyd/protocol"
)

type channelDestination chan *ekeyd.Event

func (c channelDestination) Submit(events ...*ekeyd.Event) {
	for _, ev := range events {
		c <- ev
	}
}

func (c channelDestination) Run(ctx context.Context) { <-ctx.Done() }

func testConfig(proto protocol.Name) Config {
	return Config{
		Address:       "127.0.0.1",
		Protocol:      proto,
		RetryInterval: 20 * time.Millisecond,
		PollInterval:  20 * time.Millisecond,
	}
}

func runListener(t *testing.T, l *Listener) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("listener did not stop")
		}
	}
}

func send(t *testing.T, addr *net.UDPAddr, payload string) {
	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func receive(t *testing.T, events channelDestination) *ekeyd.Event {
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestListenerDecodes(t *testing.T) {
	events := make(channelDestination, 10)
	l := New(zaptest.NewLogger(t), testConfig(protocol.Home), events)
	stop := runListener(t, l)
	defer stop()

	require.Eventually(t, func() bool { return l.State() == Listening }, 5*time.Second, 10*time.Millisecond)

	send(t, l.LocalAddr(), "1_0046_4_80156809150025_1_2")
	ev := receive(t, events)
	require.Equal(t, "127.0.0.1", ev.SenderIP)
	require.Equal(t, protocol.Home, ev.Protocol)
	require.Equal(t, 46, ev.Fields()["userId"])
	require.Equal(t, "Relays2", ev.Fields()["relay"])

	send(t, l.LocalAddr(), "too short")
	ev = receive(t, events)
	require.NotNil(t, ev.Payload)
	require.Empty(t, ev.Fields())
}

func TestListenerUnknownProtocol(t *testing.T) {
	events := make(channelDestination, 10)
	l := New(zaptest.NewLogger(t), testConfig("ekey"), events)
	stop := runListener(t, l)
	defer stop()

	require.Eventually(t, func() bool { return l.State() == Listening }, 5*time.Second, 10*time.Millisecond)

	send(t, l.LocalAddr(), "1_0046_4_80156809150025_1_2")
	ev := receive(t, events)
	require.Equal(t, "127.0.0.1", ev.SenderIP)
	require.Nil(t, ev.Payload)
	require.Nil(t, ev.Fields())
}

func TestListenerRecoversFromBindFailure(t *testing.T) {
	held, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := held.LocalAddr().(*net.UDPAddr).Port

	config := testConfig(protocol.Multi)
	config.Port = uint16(port)
	events := make(channelDestination, 10)
	l := New(zaptest.NewLogger(t), config, events)
	stop := runListener(t, l)
	defer stop()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, Disconnected, l.State())
	require.Nil(t, l.LocalAddr())

	require.NoError(t, held.Close())
	require.Eventually(t, func() bool { return l.State() == Listening }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, port, l.LocalAddr().Port)

	send(t, l.LocalAddr(), "10003JOSEF----17280156809150025GAR-1-")
	ev := receive(t, events)
	require.Equal(t, "JOSEF", ev.Fields()["username"])
}

func TestListenerReconnectsAfterReceiveFailure(t *testing.T) {
	reserved, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := reserved.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, reserved.Close())

	core, logs := observer.New(zapcore.WarnLevel)
	config := testConfig(protocol.Home)
	config.Port = uint16(port)
	config.RetryInterval = 300 * time.Millisecond
	events := make(channelDestination, 10)
	l := New(zap.New(core), config, events)
	stop := runListener(t, l)
	defer stop()

	require.Eventually(t, func() bool { return l.State() == Listening }, 5*time.Second, 5*time.Millisecond)

	// a zero-length datagram is a receive failure.
	sender, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer func() { _ = sender.Close() }()
	_, err = sender.WriteToUDP(nil, l.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return l.State() == Disconnected }, 5*time.Second, 5*time.Millisecond)
	require.Nil(t, l.LocalAddr())
	require.Equal(t, 1, logs.FilterMessage("receive failed, reconnecting").Len())

	require.Eventually(t, func() bool { return l.State() == Listening }, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, port, l.LocalAddr().Port)

	send(t, l.LocalAddr(), "1_0046_4_80156809150025_1_2")
	ev := receive(t, events)
	require.Equal(t, "open", ev.Fields()["action"])
	require.Empty(t, events)
}

func TestListenerStopsPromptly(t *testing.T) {
	l := New(zaptest.NewLogger(t), testConfig(protocol.Rare), make(channelDestination, 1))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return l.State() == Listening }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop within a second")
	}
	require.Equal(t, Disconnected, l.State())
}

func TestPacketSenderIP(t *testing.T) {
	p := &Packet{Source: &net.UDPAddr{IP: net.ParseIP("::ffff:10.1.2.3"), Port: 7}}
	require.Equal(t, "10.1.2.3", p.SenderIP())

	p = &Packet{Source: &net.UDPAddr{IP: net.ParseIP("fe80::1"), Port: 7}}
	require.Equal(t, "fe80::1", p.SenderIP())

	p = &Packet{Source: &net.UDPAddr{IP: net.ParseIP("fe80::1"), Port: 7, Zone: "eth0"}}
	require.Equal(t, "fe80::1", p.SenderIP())

	require.Equal(t, "", (&Packet{}).SenderIP())
}
