package ddns

// Record is a point-in-time snapshot of one DNS record held by a provider.
//
// The field names follow the Alibaba Cloud DNS API so the output of
// "aliyun alidns DescribeDomainRecords" decodes without translation.
// Only RecordID, RR and Value are read by the reconciler; the rest is
// provider metadata carried along for logging.
type Record struct {
	DomainName string `json:"DomainName"` // "example.com"
	RecordID   string `json:"RecordId"`   // "831569755440133120"
	Type       string `json:"Type"`       // "A"
	Value      string `json:"Value"`      // "127.0.0.1"
	RR         string `json:"RR"`         // "home"
	TTL        int64  `json:"TTL"`        // 600
	Line       string `json:"Line"`       // "default"
	Locked     bool   `json:"Locked"`
	Status     string `json:"Status"` // "ENABLE"
	Weight     *int64 `json:"Weight,omitempty"`
}

// findRecord returns the first record whose host prefix is rr,
// along with the total number of records sharing that prefix.
func findRecord(records []Record, rr string) (Record, int, bool) {
	var (
		found Record
		count int
	)
	for _, r := range records {
		if r.RR != rr {
			continue
		}
		if count == 0 {
			found = r
		}
		count++
	}
	return found, count, count > 0
}
