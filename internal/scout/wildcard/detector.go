// Package wildcard classifies resolved candidates against per-zone wildcard
// DNS behavior. For each parent zone it probes random labels and records
// which answer sets recur; a candidate whose answer set matches a recurring
// probe set is a wildcard hit, optionally double-checked over HTTP.
package wildcard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/probe"
	"github.com/sdscout/sdscout/internal/scout/resolvers"
)

const (
	// MinProbes is the smallest usable probe count per zone.
	MinProbes = 2
	// probe labels look like "_sdscout-3f9c2d4a1b0e7f68".
	probeLabelPrefix = "_sdscout-"
	// an ipset must recur this many times across probes to count.
	recurrenceThreshold = 2
)

// Options configures a Detector.
type Options struct {
	// Probes is the number of random-label probes per zone; >= MinProbes.
	Probes int
	// HTTPCheck enables content-based false-positive suppression.
	HTTPCheck bool
	// HTTPTimeout applies per suppression fetch; required when HTTPCheck.
	HTTPTimeout time.Duration
	// UserAgent for suppression fetches.
	UserAgent string
	// Logger defaults to the global logger.
	Logger log.Logger
}

// Detector owns the per-zone wildcard cache for one scan session.
type Detector struct {
	resolver resolvers.Resolver
	probes   int
	// fetch returns a host's page body for the HTTP check; nil disables it.
	fetch  func(host string) (string, bool)
	logger log.Logger

	mu    sync.Mutex
	zones map[string]map[string]struct{} // zone -> set of canonical ipsets
}

// New constructs a Detector bound to a resolver.
func New(resolver resolvers.Resolver, opts Options) (*Detector, error) {
	if opts.Probes < MinProbes {
		return nil, fmt.Errorf("wildcard probes must be >= %d", MinProbes)
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	d := &Detector{
		resolver: resolver,
		probes:   opts.Probes,
		logger:   opts.Logger,
		zones:    make(map[string]map[string]struct{}),
	}
	if opts.HTTPCheck {
		if opts.HTTPTimeout <= 0 {
			return nil, fmt.Errorf("wildcard http timeout must be > 0")
		}
		fetcher := probe.NewFetcher(opts.HTTPTimeout, opts.UserAgent)
		d.fetch = func(host string) (string, bool) {
			return fetchBody(fetcher, host)
		}
	}
	return d, nil
}

// Classify reclassifies a resolved result to wildcard when its answer set
// matches the parent zone's recurring probe answers. With the HTTP check
// enabled, a candidate whose page content differs from a fresh probe's page
// keeps its resolved status.
func (d *Detector) Classify(ctx context.Context, res *domain.Result) {
	if res.Status != domain.StatusResolved || len(res.IPs) == 0 {
		return
	}
	zone := utils.ParentZone(res.Subdomain)
	if zone == "" {
		return
	}

	ipsets := d.zoneIPSets(ctx, zone)
	if len(ipsets) == 0 {
		return
	}
	if _, hit := ipsets[canonicalIPSet(res.IPs)]; !hit {
		return
	}
	if d.fetch != nil && d.contentDiffers(res.Subdomain, zone) {
		d.logger.Debug(map[string]any{"subdomain": res.Subdomain, "zone": zone}, "wildcard suppressed by http content check")
		return
	}
	res.Status = domain.StatusWildcard
}

// zoneIPSets returns the wildcard answer sets for a zone, probing it on
// first use. Concurrent first hits may both probe; the winner's result is
// cached and readers see a consistent set afterward.
func (d *Detector) zoneIPSets(ctx context.Context, zone string) map[string]struct{} {
	d.mu.Lock()
	cached, ok := d.zones[zone]
	d.mu.Unlock()
	if ok {
		return cached
	}

	hits := make(map[string]int)
	for i := 0; i < d.probes; i++ {
		name := probeLabel() + "." + zone
		res := d.resolver.Resolve(ctx, name)
		if res.Status != domain.StatusResolved || len(res.IPs) == 0 {
			continue
		}
		hits[canonicalIPSet(res.IPs)]++
	}

	ipsets := make(map[string]struct{})
	for ipset, count := range hits {
		if count >= recurrenceThreshold {
			ipsets[ipset] = struct{}{}
		}
	}

	d.mu.Lock()
	if existing, ok := d.zones[zone]; ok {
		ipsets = existing
	} else {
		d.zones[zone] = ipsets
	}
	d.mu.Unlock()

	d.logger.Debug(map[string]any{"zone": zone, "wildcard_ipsets": len(ipsets)}, "wildcard zone probed")
	return ipsets
}

// contentDiffers compares the candidate's page against a fresh random
// probe's page, scrubbing each page's own hostname first. Shared-IP CDNs
// serve distinct content for provisioned hosts; identical content confirms
// the wildcard. A failed fetch on either side keeps the wildcard verdict.
func (d *Detector) contentDiffers(candidate, zone string) bool {
	candidateBody, ok := d.fetch(candidate)
	if !ok {
		return false
	}
	probeName := probeLabel() + "." + zone
	probeBody, ok := d.fetch(probeName)
	if !ok {
		return false
	}

	candidateBody = strings.ReplaceAll(candidateBody, strings.ToLower(candidate), "")
	probeBody = strings.ReplaceAll(probeBody, strings.ToLower(probeName), "")
	return candidateBody != probeBody
}

// fetchBody tries https then http for the host, returning the first body.
func fetchBody(fetcher *probe.Fetcher, host string) (string, bool) {
	for _, scheme := range []string{"https", "http"} {
		resp, err := fetcher.Get(fmt.Sprintf("%s://%s/", scheme, host))
		if err != nil {
			continue
		}
		return resp.Body, true
	}
	return "", false
}

// canonicalIPSet renders an IP list as an order-insensitive cache key.
func canonicalIPSet(ips []string) string {
	sorted := make([]string, len(ips))
	copy(sorted, ips)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// probeLabel returns a random label unlikely to be provisioned in any zone.
func probeLabel() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return probeLabelPrefix + hex.EncodeToString(b[:])
}
