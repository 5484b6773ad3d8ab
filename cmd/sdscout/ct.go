package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/config"
	"github.com/sdscout/sdscout/internal/scout/ct"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/repos/ctcache"
)

func runCT(ctx context.Context, args []string, cfg *config.AppConfig, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ct", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		domainFlag  string
		timeout     float64
		limit       int
		cachePath   string
		jsonSummary bool
	)
	fs.StringVar(&domainFlag, "domain", "", "apex domain to query (required)")
	fs.Float64Var(&timeout, "timeout", 10, "fetch timeout in seconds")
	fs.IntVar(&limit, "limit", -1, "cap on emitted names (negative = unlimited)")
	fs.StringVar(&cachePath, "ct-cache", cfg.CTCachePath, "bbolt cache file (empty = no cache)")
	fs.BoolVar(&jsonSummary, "json-summary", false, "emit the summary as one NDJSON object")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if domainFlag == "" {
		fmt.Fprintln(stderr, "ct: -domain is required")
		return exitUsage
	}
	apex, err := domain.NormalizeDomain(domainFlag)
	if err != nil {
		fmt.Fprintf(stderr, "ct: %v\n", err)
		return exitUsage
	}
	if utils.IsPublicSuffix(apex) {
		fmt.Fprintf(stderr, "ct: %s is a public suffix, not a queryable domain\n", apex)
		return exitUsage
	}

	var cache ct.Cache
	if cachePath != "" {
		store, err := ctcache.Open(cachePath, 0)
		if err != nil {
			fmt.Fprintf(stderr, "ct cache: %v\n", err)
			return exitFailure
		}
		defer store.Close()
		cache = store
	}

	client, err := ct.New(ct.Options{
		Timeout:   secondsDuration(timeout),
		UserAgent: cfg.UserAgent,
		Cache:     cache,
	})
	if err != nil {
		fmt.Fprintf(stderr, "ct: %v\n", err)
		return exitUsage
	}

	subdomains, summary, err := client.Fetch(ctx, apex, limit)
	if err != nil {
		fmt.Fprintf(stderr, "ct fetch failed: %v\n", err)
		return exitFailure
	}

	for _, name := range subdomains {
		fmt.Fprintln(stdout, name)
	}

	if jsonSummary {
		if err := emitJSONSummary(stdout, "ct_summary", summary); err != nil {
			fmt.Fprintf(stderr, "ct: %v\n", err)
			return exitFailure
		}
	} else {
		fmt.Fprintf(stderr, "ct records_fetched=%d names_seen=%d emitted=%d cache_hit=%t elapsed_ms=%d\n",
			summary.RecordsFetched, summary.NamesSeen, summary.Emitted,
			summary.CacheHit, summary.ElapsedMs)
	}
	return exitOK
}
