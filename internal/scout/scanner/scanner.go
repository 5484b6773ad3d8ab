// Package scanner drives a scan session: label ingestion, deduplication,
// bounded-concurrency resolution with retries, wildcard and CNAME
// classification, takeover probing, and streaming NDJSON output through a
// single writer.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/resolvers"
	"github.com/sdscout/sdscout/internal/scout/wildcard"
)

// TakeoverChecker probes a host for dangling-service fingerprints.
type TakeoverChecker interface {
	Check(hostname string) *domain.TakeoverFinding
}

// Options configures one scan session.
type Options struct {
	// Domain is the apex under which every label is resolved.
	Domain string
	// Wordlist streams labels; required.
	Wordlist io.Reader
	// ExtraLabels are CT-sourced labels, already normalized, appended after
	// the wordlist.
	ExtraLabels []string
	// OutPath is the output file; empty means stdout.
	OutPath string
	// Stdout overrides the stdout sink destination (tests).
	Stdout io.Writer

	// Timeout bounds each DNS exchange; required.
	Timeout time.Duration
	// Concurrency is the worker count; >= 1.
	Concurrency int

	// Statuses filters emitted records; nil emits everything. Mutually
	// exclusive with OnlyResolved.
	Statuses     []domain.Status
	OnlyResolved bool

	DetectWildcard      bool
	WildcardProbes      int
	WildcardHTTPCheck   bool
	WildcardHTTPTimeout time.Duration

	// Retries and RetryBackoff drive the exponential backoff policy.
	Retries      int
	RetryBackoff time.Duration

	// CTLabelCount is carried into the summary.
	CTLabelCount int

	// Takeover enables fingerprint probing when non-nil.
	Takeover TakeoverChecker

	// Resolver performs single-attempt resolution; required.
	Resolver resolvers.Resolver
	// IncludeCNAME enables cname-only reclassification (pinned resolver).
	IncludeCNAME bool
	// Resume skips labels present in the existing output and appends.
	Resume bool

	// UserAgent for wildcard HTTP suppression fetches.
	UserAgent string
	// Logger defaults to the global logger.
	Logger log.Logger
}

// Summary accumulates a scan's counters.
type Summary struct {
	Attempted             int   `json:"attempted"`
	Written               int   `json:"written"`
	Resolved              int   `json:"resolved"`
	Wildcard              int   `json:"wildcard"`
	NotFound              int   `json:"not_found"`
	Errors                int   `json:"error"`
	CNAME                 int   `json:"cname"`
	LabelsTotal           int   `json:"labels_total"`
	LabelsUnique          int   `json:"labels_unique"`
	LabelsDeduped         int   `json:"labels_deduped"`
	LabelsSkippedExisting int   `json:"labels_skipped_existing"`
	CTLabels              int   `json:"ct_labels"`
	TakeoverChecked       int   `json:"takeover_checked"`
	TakeoverSuspected     int   `json:"takeover_suspected"`
	ElapsedMs             int64 `json:"elapsed_ms"`
}

// Run executes a scan session and returns its summary. Record-level
// failures become error records; validation problems, sink I/O failures,
// and invalid wordlist labels abort the scan with an error.
func Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()

	apex, err := domain.NormalizeDomain(opts.Domain)
	if err != nil {
		return Summary{}, err
	}
	if opts.Wordlist == nil {
		return Summary{}, fmt.Errorf("wordlist is required")
	}
	if opts.Resolver == nil {
		return Summary{}, fmt.Errorf("resolver is required")
	}
	if opts.Concurrency < 1 {
		return Summary{}, fmt.Errorf("concurrency must be >= 1")
	}
	if opts.Timeout <= 0 {
		return Summary{}, fmt.Errorf("timeout must be > 0")
	}
	if opts.Retries < 0 {
		return Summary{}, fmt.Errorf("retries must be >= 0")
	}
	if opts.RetryBackoff < 0 {
		return Summary{}, fmt.Errorf("retry backoff must be >= 0")
	}
	if opts.OnlyResolved && opts.Statuses != nil {
		return Summary{}, fmt.Errorf("only-resolved and a status filter cannot both be set")
	}
	if opts.Resume && opts.OutPath == "" {
		return Summary{}, fmt.Errorf("resume requires file output, not stdout")
	}
	statusFilter, err := buildStatusFilter(opts)
	if err != nil {
		return Summary{}, err
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}

	var detector *wildcard.Detector
	if opts.DetectWildcard {
		probes := opts.WildcardProbes
		if probes == 0 {
			probes = wildcard.MinProbes
		}
		detector, err = wildcard.New(opts.Resolver, wildcard.Options{
			Probes:      probes,
			HTTPCheck:   opts.WildcardHTTPCheck,
			HTTPTimeout: opts.WildcardHTTPTimeout,
			UserAgent:   opts.UserAgent,
			Logger:      opts.Logger,
		})
		if err != nil {
			return Summary{}, err
		}
	}

	var resumeSeen map[string]struct{}
	if opts.Resume {
		resumeSeen, err = loadResumeLabels(opts.OutPath, apex)
		if err != nil {
			return Summary{}, err
		}
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	out, err := openSink(opts.OutPath, opts.Resume, stdout)
	if err != nil {
		return Summary{}, err
	}

	session := &session{
		opts:         opts,
		apex:         apex,
		statusFilter: statusFilter,
		detector:     detector,
		resumeSeen:   resumeSeen,
		seen:         newSeenSet(),
		sink:         out,
	}
	session.summary.CTLabels = opts.CTLabelCount

	runErr := session.run(ctx)
	closeErr := out.close(runErr == nil)
	if runErr == nil {
		runErr = closeErr
	}

	session.summary.ElapsedMs = time.Since(start).Milliseconds()
	opts.Logger.Info(map[string]any{
		"domain":    apex,
		"attempted": session.summary.Attempted,
		"resolved":  session.summary.Resolved,
		"written":   session.summary.Written,
	}, "scan finished")
	return session.summary, runErr
}

// session carries the mutable state of one scan. Label counters are only
// touched by the producing side, result counters only by the collector.
type session struct {
	opts         Options
	apex         string
	statusFilter map[domain.Status]struct{}
	detector     *wildcard.Detector
	resumeSeen   map[string]struct{}
	seen         *seenSet
	sink         *sink
	summary      Summary
}

func (s *session) run(ctx context.Context) error {
	if s.opts.Concurrency == 1 {
		return s.runSequential(ctx)
	}
	return s.runPooled(ctx)
}

// admit applies dedup and resume filtering, returning the FQDN to resolve
// or "" when the label is skipped.
func (s *session) admit(label string) string {
	s.summary.LabelsTotal++
	if !s.seen.Add(label) {
		s.summary.LabelsDeduped++
		return ""
	}
	s.summary.LabelsUnique++
	if s.resumeSeen != nil {
		if _, done := s.resumeSeen[label]; done {
			s.summary.LabelsSkippedExisting++
			return ""
		}
	}
	return label + "." + s.apex
}

// forEachFQDN streams admitted FQDNs from the wordlist and CT labels.
func (s *session) forEachFQDN(fn func(fqdn string) error) error {
	err := forEachLabel(s.opts.Wordlist, func(label string) error {
		if fqdn := s.admit(label); fqdn != "" {
			return fn(fqdn)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, label := range s.opts.ExtraLabels {
		if fqdn := s.admit(label); fqdn != "" {
			if err := fn(fqdn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *session) runSequential(ctx context.Context) error {
	return s.forEachFQDN(func(fqdn string) error {
		res := resolveWithRetries(ctx, s.opts.Resolver, fqdn, s.opts.Retries, s.opts.RetryBackoff)
		return s.process(ctx, res)
	})
}

// runPooled fans FQDNs out to a fixed worker pool and funnels results back
// through the collector, which owns classification, counters, and the sink.
// Output order follows completion order.
func (s *session) runPooled(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fqdns := make(chan string)
	results := make(chan domain.Result)

	var workers sync.WaitGroup
	for i := 0; i < s.opts.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for fqdn := range fqdns {
				res := resolveWithRetries(ctx, s.opts.Resolver, fqdn, s.opts.Retries, s.opts.RetryBackoff)
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var producerErr error
	go func() {
		defer close(fqdns)
		producerErr = s.forEachFQDN(func(fqdn string) error {
			select {
			case fqdns <- fqdn:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	var collectErr error
	for res := range results {
		if collectErr != nil {
			continue // drain after failure so the pool can wind down
		}
		if err := s.process(ctx, res); err != nil {
			collectErr = err
			cancel()
		}
	}

	if collectErr != nil {
		return collectErr
	}
	if producerErr != nil && producerErr != context.Canceled {
		return producerErr
	}
	return nil
}

// process applies the per-record sequence: wildcard reclassification, cname
// reclassification, takeover probe, counters, status filter, emit.
func (s *session) process(ctx context.Context, res domain.Result) error {
	s.summary.Attempted++

	if s.detector != nil {
		s.detector.Classify(ctx, &res)
	}
	if s.opts.IncludeCNAME && res.Status == domain.StatusNotFound && len(res.CNAMEs) > 0 {
		res.Status = domain.StatusCNAME
	}

	if s.opts.Takeover != nil && (res.Status == domain.StatusResolved || res.Status == domain.StatusWildcard) {
		s.summary.TakeoverChecked++
		if finding := s.opts.Takeover.Check(res.Subdomain); finding != nil {
			s.summary.TakeoverSuspected++
			res.Takeover = finding
		}
	}

	switch res.Status {
	case domain.StatusResolved:
		s.summary.Resolved++
	case domain.StatusWildcard:
		s.summary.Wildcard++
	case domain.StatusNotFound:
		s.summary.NotFound++
	case domain.StatusCNAME:
		s.summary.CNAME++
	default:
		s.summary.Errors++
	}

	if s.statusFilter != nil {
		if _, pass := s.statusFilter[res.Status]; !pass {
			return nil
		}
	}

	line, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := s.sink.writeLine(line); err != nil {
		return err
	}
	s.summary.Written++
	return nil
}

// resolveWithRetries retries retryable error results with exponential
// backoff. Attempts is always retries completed plus one.
func resolveWithRetries(ctx context.Context, r resolvers.Resolver, name string, retries int, backoff time.Duration) domain.Result {
	attempt := 0
	for {
		res := r.Resolve(ctx, name)
		res.Attempts = attempt + 1
		res.Retries = attempt
		if res.Status != domain.StatusError || !res.Retryable || attempt >= retries {
			return res
		}
		if backoff > 0 {
			sleepCtx(ctx, backoff<<uint(attempt))
		}
		attempt++
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func buildStatusFilter(opts Options) (map[domain.Status]struct{}, error) {
	if opts.OnlyResolved {
		return map[domain.Status]struct{}{domain.StatusResolved: {}}, nil
	}
	if opts.Statuses == nil {
		return nil, nil
	}
	if len(opts.Statuses) == 0 {
		return nil, fmt.Errorf("status filter must not be empty")
	}
	filter := make(map[domain.Status]struct{}, len(opts.Statuses))
	for _, st := range opts.Statuses {
		if !domain.IsKnownStatus(st) {
			return nil, fmt.Errorf("unknown status: %s", st)
		}
		filter[st] = struct{}{}
	}
	return filter, nil
}
