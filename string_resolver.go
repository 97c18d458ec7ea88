package ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns addr.
func FromString(addr string) (Resolver, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	return staticResolver(ip), nil
}

type staticResolver netip.Addr

func (s staticResolver) Resolve(context.Context) (netip.Addr, error) {
	return netip.Addr(s), nil
}
