package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first IPv4 address bound to the named interface.
// This is only useful when the machine holds the public address itself, e.g. a router with a PPPoE link.
// If iface is empty then all interfaces are searched, but loopback addresses will be skipped.
func InterfaceResolver(iface string) Resolver {
	return interfaceResolver{iface: iface}
}

type interfaceResolver struct {
	iface string
}

// Resolve implements ddns.Resolver.
func (r interfaceResolver) Resolve(context.Context) (netip.Addr, error) {
	var (
		addrs []net.Addr
		err   error
	)
	if r.iface == "" {
		addrs, err = net.InterfaceAddrs()
	} else {
		var iface *net.Interface
		iface, err = net.InterfaceByName(r.iface)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", r.iface, err)
		}
		addrs, err = iface.Addrs()
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %q: %w", r.iface, err)
	}

	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	var parseErrors []error
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("error parsing local ip %s: %s", addr.String(), err))
			continue
		}
		ip := prefix.Addr()
		if ip.IsLoopback() || !ip.Is4() {
			continue
		}
		return ip, nil
	}
	if len(parseErrors) > 0 {
		return netip.Addr{}, errors.Join(parseErrors...)
	}
	return netip.Addr{}, fmt.Errorf("no IPv4 address found on interface %q", r.iface)
}
