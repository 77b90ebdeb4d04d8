// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package transport owns the UDP socket terminals send their datagrams to.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs/v2"
)

var mon = monkit.Package()

// MaxDatagramSize is the largest payload Receive returns. Longer datagrams
// are truncated.
const MaxDatagramSize = 4096

var (
	// ErrWaitTimeout is returned by Receive when no datagram arrived in time.
	ErrWaitTimeout = errors.New("no datagram within wait interval")
	// ErrEmptyDatagram is returned by Receive for a zero length read.
	ErrEmptyDatagram = errors.New("empty datagram")
)

// Stage names the step of Acquire that failed.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageSocket   Stage = "socket"
	StageNonBlock Stage = "nonblock"
	StageBind     Stage = "bind"
)

// AcquireError is returned by Acquire.
type AcquireError struct {
	Stage   Stage
	Address string
	Err     error
}

func (err *AcquireError) Error() string {
	return fmt.Sprintf("%s %s: %v", err.Stage, err.Address, err.Err)
}

func (err *AcquireError) Unwrap() error { return err.Err }

// Endpoint is a bound, non-blocking UDP socket. It must only be used by one
// goroutine at a time.
type Endpoint struct {
	conn  *net.UDPConn
	local *net.UDPAddr
	buf   [MaxDatagramSize]byte
}

// Acquire resolves bindAddress, opens a datagram socket of the matching
// family, switches it to non-blocking mode and binds it to port. An empty
// bindAddress selects this host's address; an interface name selects that
// interface's address.
func Acquire(ctx context.Context, bindAddress string, port uint16) (_ *Endpoint, err error) {
	defer mon.Task()(&ctx)(&err)

	ip, err := ResolveBindAddress(ctx, bindAddress)
	if err != nil {
		return nil, &AcquireError{Stage: StageResolve, Address: bindAddress, Err: err}
	}

	network := "udp6"
	if ip.To4() != nil {
		network = "udp4"
	}
	address := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var nbErr error
			if err := c.Control(func(fd uintptr) { nbErr = setNonblock(fd) }); err != nil {
				return err
			}
			if nbErr != nil {
				return &AcquireError{Stage: StageNonBlock, Address: address, Err: errs.Wrap(nbErr)}
			}
			return nil
		},
	}
	pc, err := lc.ListenPacket(ctx, network, address)
	if err != nil {
		return nil, classify(address, err)
	}

	conn := pc.(*net.UDPConn)
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		_ = conn.Close()
		return nil, &AcquireError{Stage: StageBind, Address: address, Err: errs.Errorf("unexpected local address %v", conn.LocalAddr())}
	}

	return &Endpoint{conn: conn, local: local}, nil
}

// classify maps a listen failure to the stage that produced it.
func classify(address string, err error) error {
	var acquireErr *AcquireError
	if errors.As(err, &acquireErr) {
		return acquireErr
	}
	stage := StageBind
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Syscall == "socket" {
		stage = StageSocket
	}
	return &AcquireError{Stage: stage, Address: address, Err: errs.Wrap(err)}
}

// LocalAddr returns the address the endpoint is bound to.
func (e *Endpoint) LocalAddr() *net.UDPAddr { return e.local }

// Receive waits up to wait for one datagram and returns a copy of exactly
// the bytes read and the sender's address.
func (e *Endpoint) Receive(wait time.Duration) (payload []byte, source *net.UDPAddr, err error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return nil, nil, errs.Wrap(err)
	}

	for {
		n, source, err := e.conn.ReadFromUDP(e.buf[:])
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, nil, ErrWaitTimeout
			}
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return nil, source, errs.Wrap(err)
		}
		if n <= 0 {
			return nil, source, ErrEmptyDatagram
		}

		mon.Meter("datagrams").Mark(1)
		mon.IntVal("datagram_size").Observe(int64(n))
		return append([]byte(nil), e.buf[:n]...), source, nil
	}
}

// Close closes the socket.
func (e *Endpoint) Close() error {
	return errs.Wrap(e.conn.Close())
}
