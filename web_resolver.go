package ddns

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// DefaultIPService echoes the caller's address as {"ip": "..."}.
const DefaultIPService = "http://jsonip.com"

// maxBodySize caps how much of an IP service response is read.
const maxBodySize = 64 << 10

// WebResolver constructs a resolver which uses external web services to look up the public IP address.
//
// Each serviceURL must speak http and answer with a 2xx status and either a JSON object
// carrying the address in its "ip" field, or a body whose first line is the address.
// All other responses are considered an error.
//
// If only one serviceURL is given,
// then the resolver will simply return the response.
// If multiple are given,
// then the resolver will request from up to three of them and only return successfully if the first two non-error responses agreed on the IP.
//
// Requests go out over fresh connections bound to the wildcard local address,
// so a cached route or a kept-alive connection from before an address change does not skew the answer.
func WebResolver(serviceURL ...string) Resolver {
	return &webResolver{serviceURLs: serviceURL}
}

type webResolver struct {
	httpClient  *http.Client
	serviceURLs []string
}

var defaultWebClient = &http.Client{Transport: wildcardTransport()}

func wildcardTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		LocalAddr: &net.TCPAddr{},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.DisableKeepAlives = true
	return transport
}

func (wr *webResolver) SetHTTPClient(httpclient *http.Client) {
	wr.httpClient = httpclient
}

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	switch len(wr.serviceURLs) {
	case 0:
		return netip.Addr{}, errors.New("no external IP lookup services were provided")
	case 1:
		return wr.lookup(ctx, wr.serviceURLs[0])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		addr netip.Addr
		err  error
	}

	useCount := min(3, len(wr.serviceURLs))
	results := make(chan result, useCount)

	var wg sync.WaitGroup
	wg.Add(useCount)
	for _, u := range wr.serviceURLs[:useCount] {
		u := u // per-iteration copy; module targets go 1.21 loop semantics
		go func() {
			defer wg.Done()
			var r result
			r.addr, r.err = wr.lookup(ctx, u)
			results <- r
		}()
	}
	go func() { wg.Wait(); close(results) }()

	var (
		errs []error
		ip   netip.Addr
		ok   int
	)
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		ok++
		if !ip.IsValid() {
			ip = r.addr
			continue
		}
		if ip == r.addr {
			return ip, nil
		}
	}
	if ok < 2 {
		return netip.Addr{}, fmt.Errorf("not enough resolvers responded without errors: %w", errors.Join(errs...))
	}
	return netip.Addr{}, errors.New("IP resolvers did not agree on our IP")
}

func (wr *webResolver) lookup(ctx context.Context, serviceURL string) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json, text/plain")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = defaultWebClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error reading response body: %w", err)
	}
	return parseIPBody(body)
}

// parseIPBody extracts the address from {"ip": "..."} or from the first line of a plain text body.
func parseIPBody(body []byte) (netip.Addr, error) {
	body = bytes.TrimSpace(body)
	var raw string
	if bytes.HasPrefix(body, []byte("{")) {
		var rsp struct {
			IP string `json:"ip"`
		}
		if err := json.Unmarshal(body, &rsp); err != nil {
			return netip.Addr{}, fmt.Errorf("invalid json [%s]: %w", body, err)
		}
		raw = rsp.IP
	} else {
		line, _ := bufio.NewReader(bytes.NewReader(body)).ReadString('\n')
		raw = line
	}

	ip, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip, nil
}
