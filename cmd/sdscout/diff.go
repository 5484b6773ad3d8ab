package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/sdscout/sdscout/internal/scout/diff"
)

func runDiff(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		oldPath       string
		newPath       string
		resolvedOnly  bool
		skipInvalid   bool
		failOnChanges bool
		jsonSummary   bool
	)
	fs.StringVar(&oldPath, "old", "", "older scan output, or - for stdin (required)")
	fs.StringVar(&newPath, "new", "", "newer scan output, or - for stdin (required)")
	fs.BoolVar(&resolvedOnly, "resolved-only", false, "compare only resolved records")
	fs.BoolVar(&skipInvalid, "skip-invalid", false, "ignore unparseable lines instead of failing")
	fs.BoolVar(&failOnChanges, "fail-on-changes", false, "exit nonzero when the outputs differ")
	fs.BoolVar(&jsonSummary, "json-summary", false, "emit the summary as one NDJSON object")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if oldPath == "" || newPath == "" {
		fmt.Fprintln(stderr, "diff: -old and -new are required")
		return exitUsage
	}
	if oldPath == "-" && newPath == "-" {
		fmt.Fprintln(stderr, "diff: at most one input may be stdin")
		return exitUsage
	}

	loadOpts := diff.LoadOptions{ResolvedOnly: resolvedOnly, SkipInvalid: skipInvalid}
	old, code := loadDiffInput(oldPath, loadOpts, stderr)
	if code != exitOK {
		return code
	}
	updated, code := loadDiffInput(newPath, loadOpts, stderr)
	if code != exitOK {
		return code
	}

	summary, events := diff.Compute(old, updated)

	enc := json.NewEncoder(stdout)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			fmt.Fprintf(stderr, "diff: %v\n", err)
			return exitFailure
		}
	}

	if jsonSummary {
		if err := emitJSONSummary(stdout, "diff_summary", summary); err != nil {
			fmt.Fprintf(stderr, "diff: %v\n", err)
			return exitFailure
		}
	} else {
		fmt.Fprintf(stderr, "diff old=%d new=%d added=%d removed=%d changed=%d unchanged=%d\n",
			summary.OldTotal, summary.NewTotal, summary.Added, summary.Removed,
			summary.Changed, summary.Unchanged)
	}

	if failOnChanges && summary.Added+summary.Removed+summary.Changed > 0 {
		return exitFailure
	}
	return exitOK
}

func loadDiffInput(path string, opts diff.LoadOptions, stderr io.Writer) (map[string]diff.RecordView, int) {
	r, closeInput, err := openInput(path)
	if err != nil {
		fmt.Fprintf(stderr, "diff: %v\n", err)
		return nil, exitUsage
	}
	defer closeInput()

	src := path
	if path == "-" {
		src = "stdin"
	}
	records, err := diff.Load(r, src, opts)
	if err != nil {
		fmt.Fprintf(stderr, "diff: %v\n", err)
		return nil, exitFailure
	}
	return records, exitOK
}
