package ddns

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

const (
	// OpenDNSServer is resolver1.opendns.com.
	OpenDNSServer = "208.67.222.222:53"

	openDNSMyIP = "myip.opendns.com."
)

// OpenDNSResolver constructs a resolver that asks an OpenDNS server for the A record of myip.opendns.com,
// which OpenDNS answers with the address the query came from.
// An empty server means OpenDNSServer.
func OpenDNSResolver(server string) Resolver {
	if server == "" {
		server = OpenDNSServer
	}
	return &dnsResolver{
		server: server,
		name:   openDNSMyIP,
		client: &dns.Client{Net: "udp", Timeout: 5 * time.Second},
	}
}

type dnsResolver struct {
	server string
	name   string
	client *dns.Client
}

// Resolve implements ddns.Resolver.
func (r *dnsResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(r.name, dns.TypeA)

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns query to %s failed: %w", r.server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns query to %s returned %s", r.server, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.A.To4())
		if !ok {
			return netip.Addr{}, fmt.Errorf("invalid A record %s", a.A)
		}
		return ip, nil
	}
	return netip.Addr{}, fmt.Errorf("no A record for %s in answer from %s", r.name, r.server)
}
