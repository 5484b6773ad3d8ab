package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/config"
	"github.com/sdscout/sdscout/internal/scout/ct"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/gateways/dnsclient"
	"github.com/sdscout/sdscout/internal/scout/repos/ctcache"
	"github.com/sdscout/sdscout/internal/scout/resolvers"
	"github.com/sdscout/sdscout/internal/scout/scanner"
	"github.com/sdscout/sdscout/internal/scout/takeover"
)

// scanFlags holds the parsed scan subcommand options.
type scanFlags struct {
	domain      string
	wordlist    string
	out         string
	timeout     float64
	concurrency int

	statusList   string
	onlyResolved bool

	detectWildcard    bool
	wildcardProbes    int
	wildcardHTTPCheck bool

	retries        int
	retryBackoffMs int

	useCT     bool
	ctTimeout float64
	ctLimit   int
	ctCache   string

	useTakeover     bool
	takeoverTimeout float64
	fingerprints    string

	resolverSpecs stringList
	resolversFile string

	includeCNAME bool
	resume       bool
	jsonSummary  bool
}

func runScan(ctx context.Context, args []string, cfg *config.AppConfig, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f scanFlags
	fs.StringVar(&f.domain, "domain", "", "apex domain to scan (required)")
	fs.StringVar(&f.wordlist, "wordlist", "", "label wordlist path, or - for stdin (required)")
	fs.StringVar(&f.out, "out", "subdomains.jsonl", "output NDJSON path, or - for stdout")
	fs.Float64Var(&f.timeout, "timeout", float64(cfg.TimeoutMs)/1000, "per-query timeout in seconds")
	fs.IntVar(&f.concurrency, "concurrency", cfg.Concurrency, "resolver worker count")
	fs.StringVar(&f.statusList, "status", "", "comma-separated statuses to emit (default all)")
	fs.BoolVar(&f.onlyResolved, "only-resolved", false, "emit only resolved records")
	fs.BoolVar(&f.detectWildcard, "detect-wildcard", false, "reclassify wildcard DNS answers")
	fs.IntVar(&f.wildcardProbes, "wildcard-probes", cfg.WildcardProbes, "random probes per wildcard zone")
	fs.BoolVar(&f.wildcardHTTPCheck, "wildcard-http-check", false, "suppress wildcard hits whose page content differs")
	fs.IntVar(&f.retries, "retries", cfg.Retries, "retries for retryable errors")
	fs.IntVar(&f.retryBackoffMs, "retry-backoff-ms", cfg.RetryBackoffMs, "base retry backoff in milliseconds")
	fs.BoolVar(&f.useCT, "ct", false, "merge certificate-transparency labels after the wordlist")
	fs.Float64Var(&f.ctTimeout, "ct-timeout", 10, "CT fetch timeout in seconds")
	fs.IntVar(&f.ctLimit, "ct-limit", -1, "cap on CT names (negative = unlimited)")
	fs.StringVar(&f.ctCache, "ct-cache", cfg.CTCachePath, "bbolt cache file for CT fetches (empty = no cache)")
	fs.BoolVar(&f.useTakeover, "takeover", false, "probe resolved hosts for takeover fingerprints")
	fs.Float64Var(&f.takeoverTimeout, "takeover-timeout", float64(cfg.HTTPTimeoutMs)/1000, "takeover probe timeout in seconds")
	fs.StringVar(&f.fingerprints, "fingerprints", "", "fingerprint catalog JSON (default embedded catalog)")
	fs.Var(&f.resolverSpecs, "resolver", "pinned nameserver IP[:PORT] (repeatable)")
	fs.StringVar(&f.resolversFile, "resolvers-file", "", "file of pinned nameservers, one per line")
	fs.BoolVar(&f.includeCNAME, "include-cname", false, "emit CNAME chains (pinned resolvers only)")
	fs.BoolVar(&f.resume, "resume", false, "skip labels present in the existing output and append")
	fs.BoolVar(&f.jsonSummary, "json-summary", false, "emit the summary as one NDJSON object")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	apex, servers, code := validateScanFlags(&f, cfg, stderr)
	if code != exitOK {
		return code
	}

	statuses := parseStatusList(f.statusList)
	for _, st := range statuses {
		if !domain.IsKnownStatus(st) {
			fmt.Fprintf(stderr, "scan: unknown status: %s\n", st)
			return exitUsage
		}
	}

	resolver, code := buildResolver(&f, cfg, servers, stderr)
	if code != exitOK {
		return code
	}

	var checker scanner.TakeoverChecker
	if f.useTakeover {
		catalog := takeover.DefaultCatalog()
		if f.fingerprints != "" {
			var err error
			catalog, err = takeover.LoadCatalog(f.fingerprints)
			if err != nil {
				fmt.Fprintf(stderr, "fingerprint catalog: %v\n", err)
				return exitUsage
			}
		}
		c, err := takeover.NewChecker(catalog, secondsDuration(f.takeoverTimeout), cfg.UserAgent)
		if err != nil {
			fmt.Fprintf(stderr, "takeover: %v\n", err)
			return exitUsage
		}
		checker = c
	}

	var extraLabels []string
	if f.useCT {
		labels, code := fetchCTLabels(ctx, &f, cfg, apex, stderr)
		if code != exitOK {
			return code
		}
		extraLabels = labels
	}

	wordlist, closeWordlist, err := openInput(f.wordlist)
	if err != nil {
		fmt.Fprintf(stderr, "wordlist: %v\n", err)
		return exitUsage
	}
	defer closeWordlist()

	outPath := f.out
	if outPath == "-" {
		outPath = ""
	}

	opts := scanner.Options{
		Domain:              apex,
		Wordlist:            wordlist,
		ExtraLabels:         extraLabels,
		OutPath:             outPath,
		Stdout:              stdout,
		Timeout:             secondsDuration(f.timeout),
		Concurrency:         f.concurrency,
		Statuses:            statuses,
		OnlyResolved:        f.onlyResolved,
		DetectWildcard:      f.detectWildcard,
		WildcardProbes:      f.wildcardProbes,
		WildcardHTTPCheck:   f.wildcardHTTPCheck,
		WildcardHTTPTimeout: secondsDuration(f.takeoverTimeout),
		Retries:             f.retries,
		RetryBackoff:        time.Duration(f.retryBackoffMs) * time.Millisecond,
		CTLabelCount:        len(extraLabels),
		Takeover:            checker,
		Resolver:            resolver,
		IncludeCNAME:        f.includeCNAME,
		Resume:              f.resume,
		UserAgent:           cfg.UserAgent,
	}

	summary, err := scanner.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(stderr, "scan failed: %v\n", err)
		return exitFailure
	}

	summaryOut := summaryWriter(outPath, stdout, stderr)
	if f.jsonSummary {
		if err := emitJSONSummary(summaryOut, "scan_summary", summary); err != nil {
			fmt.Fprintf(stderr, "summary: %v\n", err)
			return exitFailure
		}
	} else {
		fmt.Fprintf(summaryOut,
			"scanned attempted=%d resolved=%d wildcard=%d cname=%d not_found=%d error=%d written=%d elapsed_ms=%d\n",
			summary.Attempted, summary.Resolved, summary.Wildcard, summary.CNAME,
			summary.NotFound, summary.Errors, summary.Written, summary.ElapsedMs)
	}
	if summary.Errors > 0 {
		return exitFailure
	}
	return exitOK
}

// validateScanFlags checks required flags and mutual exclusions, returning
// the normalized apex and any pinned nameservers.
func validateScanFlags(f *scanFlags, cfg *config.AppConfig, stderr io.Writer) (string, []domain.Nameserver, int) {
	if f.domain == "" {
		fmt.Fprintln(stderr, "scan: -domain is required")
		return "", nil, exitUsage
	}
	if f.wordlist == "" {
		fmt.Fprintln(stderr, "scan: -wordlist is required")
		return "", nil, exitUsage
	}
	apex, err := domain.NormalizeDomain(f.domain)
	if err != nil {
		fmt.Fprintf(stderr, "scan: %v\n", err)
		return "", nil, exitUsage
	}
	if utils.IsPublicSuffix(apex) {
		fmt.Fprintf(stderr, "scan: %s is a public suffix, not a scannable domain\n", apex)
		return "", nil, exitUsage
	}
	if f.onlyResolved && f.statusList != "" {
		fmt.Fprintln(stderr, "scan: -only-resolved and -status are mutually exclusive")
		return "", nil, exitUsage
	}
	if f.resume && f.out == "-" {
		fmt.Fprintln(stderr, "scan: -resume requires a file -out")
		return "", nil, exitUsage
	}

	specs := append([]string{}, cfg.Resolvers...)
	if len(f.resolverSpecs) > 0 || f.resolversFile != "" {
		specs = append([]string{}, f.resolverSpecs...)
	}

	var servers []domain.Nameserver
	for _, spec := range specs {
		ns, err := domain.ParseNameserver(spec)
		if err != nil {
			fmt.Fprintf(stderr, "scan: %v\n", err)
			return "", nil, exitUsage
		}
		servers = append(servers, ns)
	}
	if f.resolversFile != "" {
		fromFile, err := domain.LoadNameserverFile(f.resolversFile)
		if err != nil {
			fmt.Fprintf(stderr, "scan: %v\n", err)
			return "", nil, exitUsage
		}
		servers = append(servers, fromFile...)
	}

	if f.includeCNAME && len(servers) == 0 {
		fmt.Fprintln(stderr, "scan: -include-cname requires pinned resolvers")
		return "", nil, exitUsage
	}
	return apex, servers, exitOK
}

func buildResolver(f *scanFlags, cfg *config.AppConfig, servers []domain.Nameserver, stderr io.Writer) (resolvers.Resolver, int) {
	if len(servers) == 0 {
		return resolvers.NewSystemResolver(), exitOK
	}
	client, err := dnsclient.New(dnsclient.Options{
		Servers:   servers,
		Timeout:   secondsDuration(f.timeout),
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		fmt.Fprintf(stderr, "scan: %v\n", err)
		return nil, exitUsage
	}
	return resolvers.NewCustomResolver(client, f.includeCNAME), exitOK
}

// fetchCTLabels pulls CT names for the apex and converts them to labels.
func fetchCTLabels(ctx context.Context, f *scanFlags, cfg *config.AppConfig, apex string, stderr io.Writer) ([]string, int) {
	var cache ct.Cache
	if f.ctCache != "" {
		store, err := ctcache.Open(f.ctCache, 0)
		if err != nil {
			fmt.Fprintf(stderr, "ct cache: %v\n", err)
			return nil, exitFailure
		}
		defer store.Close()
		cache = store
	}
	client, err := ct.New(ct.Options{
		Timeout:   secondsDuration(f.ctTimeout),
		UserAgent: cfg.UserAgent,
		Cache:     cache,
	})
	if err != nil {
		fmt.Fprintf(stderr, "ct: %v\n", err)
		return nil, exitUsage
	}
	subdomains, summary, err := client.Fetch(ctx, apex, f.ctLimit)
	if err != nil {
		fmt.Fprintf(stderr, "ct fetch failed: %v\n", err)
		return nil, exitFailure
	}
	log.Info(map[string]any{
		"apex":    apex,
		"records": summary.RecordsFetched,
		"emitted": summary.Emitted,
	}, "ct labels merged")
	return ct.SubdomainsToLabels(subdomains, apex), exitOK
}

func parseStatusList(raw string) []domain.Status {
	if raw == "" {
		return nil
	}
	var statuses []domain.Status
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		statuses = append(statuses, domain.Status(part))
	}
	if statuses == nil {
		statuses = []domain.Status{}
	}
	return statuses
}

// summaryWriter keeps stdout machine-readable: when records go to stdout
// the summary moves to stderr.
func summaryWriter(outPath string, stdout, stderr io.Writer) io.Writer {
	if outPath == "" {
		return stderr
	}
	return stdout
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
