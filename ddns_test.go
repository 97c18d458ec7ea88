package ddns_test

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/rtcsdk/ddns"
)

type update struct {
	id, rr, value string
}

// fakeStore is an in-memory ddns.RecordStore that applies updates to its records.
type fakeStore struct {
	mu        sync.Mutex
	records   []ddns.Record
	listErr   error
	updateErr error
	lists     int
	updates   []update
}

func (s *fakeStore) ListRecords(_ context.Context, domain string) ([]ddns.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]ddns.Record(nil), s.records...), nil
}

func (s *fakeStore) UpdateA(_ context.Context, id, rr, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{id, rr, value})
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.records {
		if s.records[i].RecordID == id {
			s.records[i].Value = value
		}
	}
	return nil
}

func (s *fakeStore) Updates() []update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]update(nil), s.updates...)
}

func homeRecord(value string) ddns.Record {
	return ddns.Record{DomainName: "example.com", RecordID: "1", Type: "A", RR: "home", Value: value}
}

func staticIP(t *testing.T, ip string) ddns.Resolver {
	t.Helper()
	r, err := ddns.FromString(ip)
	if err != nil {
		t.Fatalf("FromString(%q): %s", ip, err)
	}
	return r
}

func newClient(t *testing.T, store ddns.RecordStore, resolver ddns.Resolver, opts ...ddns.Option) *ddns.Client {
	t.Helper()
	opts = append([]ddns.Option{ddns.UsingRecordStore(store), ddns.UsingResolver(resolver)}, opts...)
	c, err := ddns.New("example.com", "home", opts...)
	if err != nil {
		t.Fatalf("ddns.New: %s", err)
	}
	return c
}

func TestReconcileUnchanged(t *testing.T) {
	store := &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}}
	c := newClient(t, store, staticIP(t, "1.2.3.4"))

	res, err := c.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %s", err)
	}
	if res.Outcome != ddns.Unchanged {
		t.Fatalf("Expected outcome %s; got %s", ddns.Unchanged, res.Outcome)
	}
	if expected, got := netip.MustParseAddr("1.2.3.4"), res.IP; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if u := store.Updates(); len(u) != 0 {
		t.Fatalf("Expected no update calls; got %+v", u)
	}
}

func TestReconcileUpdated(t *testing.T) {
	store := &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}}
	c := newClient(t, store, staticIP(t, "5.6.7.8"))

	res, err := c.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %s", err)
	}
	if res.Outcome != ddns.Updated {
		t.Fatalf("Expected outcome %s; got %s", ddns.Updated, res.Outcome)
	}
	if res.IP.String() != "5.6.7.8" || res.Previous != "1.2.3.4" || res.RecordID != "1" {
		t.Fatalf("Unexpected result %+v", res)
	}
	u := store.Updates()
	if len(u) != 1 {
		t.Fatalf("Expected exactly one update call; got %d", len(u))
	}
	if expected := (update{"1", "home", "5.6.7.8"}); u[0] != expected {
		t.Fatalf("Expected update %+v; got %+v", expected, u[0])
	}
}

func TestReconcileRecordNotFound(t *testing.T) {
	store := &fakeStore{records: []ddns.Record{
		{RecordID: "2", RR: "www", Value: "1.2.3.4"},
	}}
	c := newClient(t, store, staticIP(t, "5.6.7.8"))

	_, err := c.Reconcile(context.Background())
	if !errors.Is(err, ddns.ErrRecordNotFound) {
		t.Fatalf("Expected ErrRecordNotFound; got %v", err)
	}
	if u := store.Updates(); len(u) != 0 {
		t.Fatalf("Expected no update calls; got %+v", u)
	}
}

func TestReconcileFirstMatchWins(t *testing.T) {
	store := &fakeStore{records: []ddns.Record{
		{RecordID: "www", RR: "www", Value: "9.9.9.9"},
		{RecordID: "first", RR: "home", Value: "1.1.1.1"},
		{RecordID: "second", RR: "home", Value: "2.2.2.2"},
	}}
	c := newClient(t, store, staticIP(t, "5.6.7.8"))

	res, err := c.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %s", err)
	}
	if res.RecordID != "first" {
		t.Fatalf("Expected first matching record to be used; got %q", res.RecordID)
	}
}

func TestReconcileErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := ddns.ResolverFunc(func(context.Context) (netip.Addr, error) {
		return netip.Addr{}, boom
	})

	tests := []struct {
		name     string
		store    *fakeStore
		resolver ddns.Resolver
		context  string
		lists    int
		updates  int
	}{
		{"resolver", &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}}, failing, "get_my_ip fail", 0, 0},
		{"list", &fakeStore{listErr: boom}, staticIP(t, "1.2.3.4"), "get_domain_records fail", 1, 0},
		{"update", &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}, updateErr: boom}, staticIP(t, "5.6.7.8"), "update_domain_record_a fail", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, tt.store, tt.resolver)
			res, err := c.Reconcile(context.Background())
			if !errors.Is(err, boom) {
				t.Fatalf("Expected wrapped error; got %v", err)
			}
			if !strings.HasPrefix(err.Error(), tt.context) {
				t.Fatalf("Expected error to start with %q; got %q", tt.context, err)
			}
			if res.Outcome != ddns.Failed {
				t.Fatalf("Expected outcome %s; got %s", ddns.Failed, res.Outcome)
			}
			if tt.store.lists != tt.lists {
				t.Fatalf("Expected %d list calls; got %d", tt.lists, tt.store.lists)
			}
			if got := len(tt.store.Updates()); got != tt.updates {
				t.Fatalf("Expected %d update calls; got %d", tt.updates, got)
			}
		})
	}
}

func TestReconcileTimeout(t *testing.T) {
	hanging := ddns.ResolverFunc(func(ctx context.Context) (netip.Addr, error) {
		<-ctx.Done()
		return netip.Addr{}, ctx.Err()
	})
	store := &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}}
	c := newClient(t, store, hanging, ddns.WithTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := c.Reconcile(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Expected deadline exceeded; got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reconcile did not honour the call timeout")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := ddns.New("", "home", ddns.UsingRecordStore(&fakeStore{})); err == nil {
		t.Error("Expected error for empty domain")
	}
	if _, err := ddns.New("example.com", "", ddns.UsingRecordStore(&fakeStore{})); err == nil {
		t.Error("Expected error for empty rr")
	}
	if _, err := ddns.New("example.com", "home"); err == nil {
		t.Error("Expected error when no record store is registered")
	}
	if _, err := ddns.New("example.com", "home", ddns.UsingRecordStore(nil)); err == nil {
		t.Error("Expected error for nil record store")
	}
}

func TestRunLogsTransitions(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// fail, unchanged, unchanged, updated, unchanged
	answers := []string{"", "1.2.3.4", "1.2.3.4", "5.6.7.8", "5.6.7.8"}
	var calls int
	resolver := ddns.ResolverFunc(func(context.Context) (netip.Addr, error) {
		defer func() { calls++ }()
		if calls >= len(answers) {
			cancel()
			return netip.Addr{}, context.Canceled
		}
		if answers[calls] == "" {
			return netip.Addr{}, errors.New("service unavailable")
		}
		return netip.MustParseAddr(answers[calls]), nil
	})
	c := newClient(t, store, resolver, ddns.WithLogger(logger))

	err := c.Run(ctx, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected Run to return context.Canceled; got %v", err)
	}

	entries := hook.AllEntries()
	want := []struct {
		level  logrus.Level
		prefix string
	}{
		{logrus.WarnLevel, "update failed"},
		{logrus.InfoLevel, "exist domain record [home] = [1.2.3.4]"},
		{logrus.InfoLevel, "update domain record [home] -> [5.6.7.8]"},
		{logrus.InfoLevel, "exist domain record [home] = [5.6.7.8]"},
	}
	if len(entries) != len(want) {
		for _, e := range entries {
			t.Logf("%s: %s", e.Level, e.Message)
		}
		t.Fatalf("Expected %d log entries; got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Level != w.level || !strings.HasPrefix(entries[i].Message, w.prefix) {
			t.Errorf("entry %d: expected %s %q; got %s %q", i, w.level, w.prefix, entries[i].Level, entries[i].Message)
		}
		if entries[i].Data["task"] != "update" {
			t.Errorf("entry %d: expected task=update field; got %v", i, entries[i].Data["task"])
		}
	}
	if u := store.Updates(); len(u) != 1 {
		t.Fatalf("Expected one update call; got %+v", u)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{records: []ddns.Record{homeRecord("1.2.3.4")}}
	c := newClient(t, store, staticIP(t, "1.2.3.4"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Hour) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled; got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.lists != 1 {
		t.Fatalf("Expected a single attempt within the interval; got %d", store.lists)
	}
}
