package domain

// Status classifies the outcome of one resolution attempt.
type Status string

const (
	StatusResolved Status = "resolved"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
	StatusWildcard Status = "wildcard"
	StatusCNAME    Status = "cname"
)

// KnownStatuses lists every status a record may carry, in emission order.
var KnownStatuses = []Status{StatusResolved, StatusNotFound, StatusError, StatusWildcard, StatusCNAME}

// IsKnownStatus reports whether s is one of the five record statuses.
func IsKnownStatus(s Status) bool {
	for _, k := range KnownStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// ResolvedHost is the answer set accumulated by the pinned DNS client for a
// single name, across A/AAAA queries and any CNAME chain followed.
type ResolvedHost struct {
	// IPs preserves first-observation order and contains no duplicates.
	IPs []string
	// CNAMEs is the ordered chain of targets followed, free of duplicates.
	CNAMEs []string
	// RecordTypes holds the observed types in canonical A, AAAA, CNAME order.
	RecordTypes []string
	// TTLMin and TTLMax span the TTLs of the address answers; nil when no
	// address records were observed.
	TTLMin *uint32
	TTLMax *uint32
}

// CanonicalTarget returns the last CNAME in the chain, or "" when the name
// resolved directly.
func (h ResolvedHost) CanonicalTarget() string {
	if len(h.CNAMEs) == 0 {
		return ""
	}
	return h.CNAMEs[len(h.CNAMEs)-1]
}

// Result is one NDJSON output record, keyed by FQDN.
type Result struct {
	Subdomain string   `json:"subdomain"`
	IPs       []string `json:"ips"`
	Status    Status   `json:"status"`
	ElapsedMs int64    `json:"elapsed_ms"`
	Attempts  int      `json:"attempts"`
	Retries   int      `json:"retries"`

	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	ErrorCode *int   `json:"error_code,omitempty"`

	CNAMEs          []string `json:"cnames,omitempty"`
	CanonicalTarget string   `json:"canonical_target,omitempty"`
	DNSRecordTypes  []string `json:"dns_record_types,omitempty"`
	TTLMin          *uint32  `json:"ttl_min,omitempty"`
	TTLMax          *uint32  `json:"ttl_max,omitempty"`

	Takeover *TakeoverFinding `json:"takeover,omitempty"`

	// Retryable is set by the resolver facade when the error kind is worth
	// another attempt. Never serialized.
	Retryable bool `json:"-"`
}

// TakeoverFinding reports a dangling-host fingerprint match.
type TakeoverFinding struct {
	Service            string `json:"service"`
	Confidence         string `json:"confidence"`
	Score              int    `json:"score"`
	FingerprintVersion string `json:"fingerprint_version"`
	MatchedPattern     string `json:"matched_pattern"`
	StatusCode         int    `json:"status_code"`
	URL                string `json:"url"`
}
