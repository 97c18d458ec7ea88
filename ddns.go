package ddns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the wait between two reconciliation attempts.
	DefaultInterval = 60 * time.Second

	// DefaultTimeout bounds every call to the resolver or the record store.
	DefaultTimeout = 30 * time.Second
)

// DefaultResolver asks jsonip.com for the public address.
var DefaultResolver = WebResolver(DefaultIPService)

// ErrRecordNotFound is returned by Reconcile when no record of the zone carries the requested host prefix.
var ErrRecordNotFound = errors.New("record not found for host_prefix")

var discard = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Outcome classifies a single reconciliation attempt.
type Outcome int

const (
	Failed Outcome = iota
	Unchanged
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return "failed"
	}
}

// Result describes what Reconcile observed and did.
type Result struct {
	Outcome  Outcome
	IP       netip.Addr // freshly discovered address
	Previous string     // record value before the attempt
	RecordID string
}

// New creates a client that keeps the A record rr.domain pointed at the address returned by its Resolver.
//
// A RecordStore must be registered with one of UsingAliyunCLI, UsingCloudflare or UsingRecordStore.
// When no resolver option is given, DefaultResolver is used.
func New(domain, rr string, options ...Option) (*Client, error) {
	if domain == "" {
		return nil, fmt.Errorf("ddns.New: domain cannot be empty")
	}
	if rr == "" {
		return nil, fmt.Errorf("ddns.New: rr cannot be empty")
	}
	c := &Client{
		Resolver: DefaultResolver,
		domain:   domain,
		rr:       rr,
		timeout:  DefaultTimeout,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %s", i, err)
		}
	}

	if c.RecordStore == nil {
		return nil, fmt.Errorf("ddns.New: no DNS provider was registered and there is no default option - use ddns.UsingAliyunCLI or similar")
	}

	// dependencies may have been registered after WithLogger or UsingHTTPClient
	c.propagate()
	return c, nil
}

// Option configures a Client in New.
type Option func(*Client) error

// UsingAliyunCLI drives the Alibaba Cloud command line tool found at path.
func UsingAliyunCLI(path, region string) Option {
	return func(c *Client) error {
		if path == "" {
			return errors.New("ddns.UsingAliyunCLI: cli path cannot be empty")
		}
		c.RecordStore = NewAliyunCLI(path, region)
		return nil
	}
}

// UsingCloudflare talks to the Cloudflare API with the given token.
func UsingCloudflare(token string) Option {
	return func(c *Client) (err error) {
		if c.RecordStore, err = newCloudflareStore(token); err != nil {
			return fmt.Errorf("ddns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingRecordStore registers any RecordStore implementation.
func UsingRecordStore(store RecordStore) Option {
	return func(c *Client) error {
		if store == nil {
			return errors.New("ddns.UsingRecordStore: store cannot be nil")
		}
		c.RecordStore = store
		return nil
	}
}

func UsingResolver(resolver Resolver) Option {
	return func(c *Client) error {
		if resolver == nil {
			resolver = DefaultResolver
		}
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) Option {
	return func(c *Client) error {
		if len(serviceURL) == 0 {
			serviceURL = []string{DefaultIPService}
		}
		c.Resolver = WebResolver(serviceURL...)
		return nil
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = httpclient
		return nil
	}
}

// WithTimeout bounds each external call made during an attempt.
// A zero or negative duration disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

func (c *Client) propagate() {
	if c.logger == nil {
		c.logger = discard
	}
	type setLogger interface {
		SetLogger(logrus.FieldLogger)
	}
	if s, ok := c.RecordStore.(setLogger); ok {
		s.SetLogger(c.logger)
	}
	if r, ok := c.Resolver.(setLogger); ok {
		r.SetLogger(c.logger)
	}

	if c.httpClient == nil {
		return
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	if s, ok := c.RecordStore.(setHTTPClient); ok {
		s.SetHTTPClient(c.httpClient)
	}
	if r, ok := c.Resolver.(setHTTPClient); ok {
		r.SetHTTPClient(c.httpClient)
	}
}

// Client reconciles a single A record.
type Client struct {
	Resolver
	RecordStore
	logger     logrus.FieldLogger
	httpClient *http.Client
	domain     string
	rr         string
	timeout    time.Duration
}

// Reconcile runs one attempt: discover the public address,
// find the record for rr and update it when its value differs.
//
// The comparison is a plain string comparison of the record value against the discovered address.
// When several records share the host prefix, the first one in provider order is used.
func (c *Client) Reconcile(ctx context.Context) (Result, error) {
	ip, err := c.resolve(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get_my_ip fail: %w", err)
	}
	c.logger.Debugf("my ip [%s]", ip)

	records, err := c.listRecords(ctx)
	if err != nil {
		return Result{IP: ip}, fmt.Errorf("get_domain_records fail: %w", err)
	}
	c.logger.Debugf("found %d records for %s", len(records), c.domain)

	record, matches, ok := findRecord(records, c.rr)
	if !ok {
		return Result{IP: ip}, fmt.Errorf("%w [%s]", ErrRecordNotFound, c.rr)
	}
	if matches > 1 {
		c.logger.Debugf("%d records share rr [%s], using record %s", matches, c.rr, record.RecordID)
	}

	res := Result{
		Outcome:  Unchanged,
		IP:       ip,
		Previous: record.Value,
		RecordID: record.RecordID,
	}
	if record.Value == ip.String() {
		return res, nil
	}

	if err := c.updateA(ctx, record.RecordID, record.RR, ip.String()); err != nil {
		res.Outcome = Failed
		return res, fmt.Errorf("update_domain_record_a fail: %w", err)
	}
	res.Outcome = Updated
	return res, nil
}

func (c *Client) resolve(ctx context.Context) (netip.Addr, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.Resolve(ctx)
}

func (c *Client) listRecords(ctx context.Context) ([]Record, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.ListRecords(ctx, c.domain)
}

func (c *Client) updateA(ctx context.Context, recordID, rr, value string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.UpdateA(ctx, recordID, rr, value)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
