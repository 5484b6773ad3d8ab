// Package diff compares two NDJSON scan outputs keyed by subdomain and
// reports added, removed, and changed records.
package diff

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// RecordView is the canonical projection of one scan record used for
// comparison. Fields absent from the source line take their zero value;
// empty optionals are omitted when the view is serialized, so two records
// that differ only in absent-vs-empty representation compare equal.
type RecordView struct {
	Status          string   `json:"status"`
	IPs             []string `json:"ips"`
	CNAMEs          []string `json:"cnames,omitempty"`
	CanonicalTarget string   `json:"canonical_target,omitempty"`
	DNSRecordTypes  []string `json:"dns_record_types,omitempty"`
	TTLMin          *int64   `json:"ttl_min,omitempty"`
	TTLMax          *int64   `json:"ttl_max,omitempty"`
	Error           *string  `json:"error,omitempty"`
}

// viewFromRecord canonicalizes a parsed NDJSON object: record types are
// uppercased, the canonical target lowercased, missing lists become empty.
func viewFromRecord(obj map[string]any) RecordView {
	view := RecordView{
		Status: asString(obj["status"]),
		IPs:    asStringList(obj["ips"]),
	}
	if view.IPs == nil {
		view.IPs = []string{}
	}
	if cnames := asStringList(obj["cnames"]); len(cnames) > 0 {
		view.CNAMEs = cnames
	}
	if target := strings.TrimSpace(asString(obj["canonical_target"])); target != "" {
		view.CanonicalTarget = strings.ToLower(target)
	}
	var types []string
	for _, t := range asStringList(obj["dns_record_types"]) {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			types = append(types, strings.ToUpper(trimmed))
		}
	}
	view.DNSRecordTypes = types
	view.TTLMin = asInt(obj["ttl_min"])
	view.TTLMax = asInt(obj["ttl_max"])
	if raw, ok := obj["error"]; ok && raw != nil {
		s := asString(raw)
		view.Error = &s
	}
	return view
}

// equal compares two views by their canonical serialized form.
func (v RecordView) equal(other RecordView) bool {
	a, _ := json.Marshal(v)
	b, _ := json.Marshal(other)
	return string(a) == string(b)
}

// Event is one diff finding. Old and New are present per Kind: added
// carries New, removed carries Old, changed carries both.
type Event struct {
	Kind      string      `json:"kind"`
	Subdomain string      `json:"subdomain"`
	Old       *RecordView `json:"old,omitempty"`
	New       *RecordView `json:"new,omitempty"`
}

// Summary totals one diff run.
type Summary struct {
	OldTotal  int `json:"old_total"`
	NewTotal  int `json:"new_total"`
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// LoadOptions controls NDJSON ingestion.
type LoadOptions struct {
	// ResolvedOnly keeps only records with status "resolved".
	ResolvedOnly bool
	// SkipInvalid drops unparseable lines instead of failing.
	SkipInvalid bool
}

// Load reads NDJSON records keyed by lowercased subdomain. Later lines win
// on duplicate keys. src names the stream in error messages.
func Load(r io.Reader, src string, opts LoadOptions) (map[string]RecordView, error) {
	records := make(map[string]RecordView)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			if opts.SkipInvalid {
				continue
			}
			return nil, fmt.Errorf("%s:%d: invalid JSON: %w", src, lineno, err)
		}
		if obj == nil {
			if opts.SkipInvalid {
				continue
			}
			return nil, fmt.Errorf("%s:%d: expected JSON object per line", src, lineno)
		}
		subdomain, ok := obj["subdomain"].(string)
		if !ok || strings.TrimSpace(subdomain) == "" {
			if opts.SkipInvalid {
				continue
			}
			return nil, fmt.Errorf("%s:%d: missing/invalid 'subdomain'", src, lineno)
		}
		view := viewFromRecord(obj)
		if opts.ResolvedOnly && view.Status != "resolved" {
			continue
		}
		records[recordKey(subdomain)] = view
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return records, nil
}

// recordKey canonicalizes a subdomain for comparison: lowercased, space and
// trailing-dot trimmed.
func recordKey(subdomain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(subdomain)), ".")
}

// Compute diffs old against new over the sorted union of keys, producing
// one event per added, removed, or changed subdomain.
func Compute(old, new map[string]RecordView) (Summary, []Event) {
	keys := make([]string, 0, len(old)+len(new))
	seen := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range new {
		if _, dup := seen[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	summary := Summary{OldTotal: len(old), NewTotal: len(new)}
	var events []Event
	for _, key := range keys {
		o, inOld := old[key]
		n, inNew := new[key]
		switch {
		case !inOld:
			summary.Added++
			events = append(events, Event{Kind: "added", Subdomain: key, New: &n})
		case !inNew:
			summary.Removed++
			events = append(events, Event{Kind: "removed", Subdomain: key, Old: &o})
		case o.equal(n):
			summary.Unchanged++
		default:
			summary.Changed++
			events = append(events, Event{Kind: "changed", Subdomain: key, Old: &o, New: &n})
		}
	}
	return summary, events
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// asInt accepts JSON numbers that are whole; anything else is nil.
func asInt(v any) *int64 {
	f, ok := v.(float64)
	if !ok || f != float64(int64(f)) {
		return nil
	}
	n := int64(f)
	return &n
}
