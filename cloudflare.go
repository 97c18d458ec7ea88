package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudflare/cloudflare-go"
	"github.com/sirupsen/logrus"
)

func newCloudflareStore(token string, opts ...cloudflare.Option) (cf *cloudflareStore, err error) {
	cf = new(cloudflareStore)
	cf.api, err = cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = discard
	cf.records = make(map[string]zoneRef)
	return cf, nil
}

// cloudflareStore implements ddns.RecordStore.
//
// Cloudflare addresses records by zone ID while UpdateA only receives a record ID,
// so ListRecords remembers which zone each listed record belongs to.
type cloudflareStore struct {
	api    *cloudflare.API
	logger logrus.FieldLogger

	mu      sync.Mutex
	records map[string]zoneRef // record ID -> zone
}

type zoneRef struct {
	id   string
	name string
}

func (cf *cloudflareStore) SetLogger(logger logrus.FieldLogger) {
	cf.logger = logger
}

func (cf *cloudflareStore) SetHTTPClient(httpclient *http.Client) {
	cloudflare.HTTPClient(httpclient)(cf.api)
}

// ListRecords implements ddns.RecordStore.
func (cf *cloudflareStore) ListRecords(ctx context.Context, domain string) ([]Record, error) {
	if cf.api == nil {
		return nil, errors.New("ddns.cloudflareStore.ListRecords: store should be constructed with ddns.UsingCloudflare")
	}

	zone, err := cf.getZoneFromDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("unable to get zone ID for %s: %w", domain, err)
	}
	cf.logger.Debugf("looking up A records for zone %s (%s)...", zone.name, zone.id)

	rs, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zone.id), cloudflare.ListDNSRecordsParams{
		Type: "A",
	})
	if err != nil {
		return nil, fmt.Errorf("error listing DNS records: %w", err)
	}
	cf.logger.Debugf("found %d existing records", len(rs))

	records := make([]Record, 0, len(rs))
	cf.mu.Lock()
	defer cf.mu.Unlock()
	for _, r := range rs {
		cf.records[r.ID] = zone
		records = append(records, Record{
			DomainName: zone.name,
			RecordID:   r.ID,
			Type:       r.Type,
			Value:      r.Content,
			RR:         hostPrefix(r.Name, zone.name),
			TTL:        int64(r.TTL),
			Locked:     r.Locked,
			Status:     "ENABLE",
		})
	}
	return records, nil
}

// UpdateA implements ddns.RecordStore.
func (cf *cloudflareStore) UpdateA(ctx context.Context, recordID, rr, value string) error {
	if cf.api == nil {
		return errors.New("ddns.cloudflareStore.UpdateA: store should be constructed with ddns.UsingCloudflare")
	}
	cf.mu.Lock()
	zone, ok := cf.records[recordID]
	cf.mu.Unlock()
	if !ok {
		return fmt.Errorf("record %s was not returned by a previous listing", recordID)
	}

	cf.logger.Debugf("updating record %s in zone %s to %s...", recordID, zone.name, value)
	_, err := cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zone.id), cloudflare.UpdateDNSRecordParams{
		ID:      recordID,
		Type:    "A",
		Name:    fqdn(rr, zone.name),
		Content: value,
	})
	if err != nil {
		return fmt.Errorf("unable to update DNS record %s: %w", recordID, err)
	}
	return nil
}

func (cf *cloudflareStore) getZoneFromDomain(ctx context.Context, domain string) (zone zoneRef, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return zoneRef{}, fmt.Errorf("error listing zones: %w", err)
	}

	max := 0
	for _, z := range zones {
		if strings.HasSuffix(domain, z.Name) && len(z.Name) > max {
			max, zone = len(z.Name), zoneRef{id: z.ID, name: z.Name}
		}
	}
	if max == 0 {
		return zoneRef{}, fmt.Errorf("unable to find a zone matching \"%s\"", domain)
	}
	return zone, nil
}

// hostPrefix turns "home.example.com" into "home" for zone "example.com".
// The zone apex is reported as "@".
func hostPrefix(name, zone string) string {
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(name, "."+zone)
}

func fqdn(rr, zone string) string {
	if rr == "@" || rr == "" {
		return zone
	}
	return rr + "." + zone
}
