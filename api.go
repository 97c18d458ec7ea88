package ddns

import (
	"context"
	"net/netip"
)

// Resolver looks up the address that the DNS record should point at.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

// Resolve implements ddns.Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}

// RecordStore is the DNS provider the reconciler reads from and writes to.
//
// ListRecords returns every record of the zone as the provider reports it.
// UpdateA sets the value of an existing record, forcing its type to "A".
type RecordStore interface {
	ListRecords(ctx context.Context, domain string) ([]Record, error)
	UpdateA(ctx context.Context, recordID, rr, value string) error
}
