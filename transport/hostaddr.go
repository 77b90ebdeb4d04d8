// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package transport

import (
	"context"
	"net"
	"os"

	"github.com/zeebo/errs/v2"
	"go.uber.org/multierr"
)

// ResolveBindAddress turns the configured bind address into an IP. It accepts
// an IP literal, a network interface name or a host name. The empty string
// selects this machine's host address. When a name has several addresses the
// first one is used.
func ResolveBindAddress(ctx context.Context, bindAddress string) (net.IP, error) {
	if bindAddress == "" {
		return HostAddress(ctx)
	}
	if ip := net.ParseIP(bindAddress); ip != nil {
		return ip, nil
	}
	if iface, err := net.InterfaceByName(bindAddress); err == nil {
		return InterfaceAddress(iface)
	}
	return lookupFirst(ctx, bindAddress)
}

// HostAddress returns the first global unicast interface address, IPv4
// first. When no interface has one, the first non-loopback address of this
// machine's host name is used.
func HostAddress(ctx context.Context) (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		if ip := pick(addrs); ip != nil {
			return ip, nil
		}
	}

	name, nameErr := os.Hostname()
	if nameErr != nil {
		return nil, errs.Wrap(multierr.Combine(err, nameErr))
	}
	resolved, lookupErr := net.DefaultResolver.LookupIPAddr(ctx, name)
	if lookupErr != nil {
		return nil, errs.Wrap(multierr.Combine(err, lookupErr))
	}
	for _, addr := range resolved {
		if !addr.IP.IsLoopback() && !addr.IP.IsUnspecified() {
			return addr.IP, nil
		}
	}
	return nil, errs.Errorf("no usable host address")
}

// InterfaceAddress returns the preferred address of iface, IPv4 first.
func InterfaceAddress(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if ip := pick(addrs); ip != nil {
		return ip, nil
	}
	for _, addr := range addrs {
		if n, ok := addr.(*net.IPNet); ok {
			return n.IP, nil
		}
	}
	return nil, errs.Errorf("interface %q has no address", iface.Name)
}

func lookupFirst(ctx context.Context, host string) (net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if len(addrs) == 0 {
		return nil, errs.Errorf("%q has no addresses", host)
	}
	return addrs[0].IP, nil
}

// pick prefers a global unicast IPv4 address, then a global unicast IPv6
// address.
func pick(addrs []net.Addr) net.IP {
	var v6 net.IP
	for _, addr := range addrs {
		n, ok := addr.(*net.IPNet)
		if !ok || !n.IP.IsGlobalUnicast() {
			continue
		}
		if n.IP.To4() != nil {
			return n.IP
		}
		if v6 == nil {
			v6 = n.IP
		}
	}
	return v6
}
