// Command sdscout discovers active subdomains: it resolves wordlist and
// certificate-transparency candidates against the system or pinned
// resolvers, classifies wildcard and CNAME behavior, probes for takeover
// fingerprints, and emits one NDJSON record per candidate.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/config"
	"github.com/sdscout/sdscout/internal/scout/version"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	schemaVersion = 1
)

const usageText = `Usage: sdscout <command> [options]

Commands:
  scan      resolve wordlist candidates under a domain
  diff      compare two NDJSON scan outputs
  ct        list subdomains seen in certificate-transparency logs
  version   print the release version

Run "sdscout <command> -h" for command options.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitUsage
	}
	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(stderr, "Logging configuration error: %v\n", err)
		return exitUsage
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "scan":
		return runScan(ctx, args[1:], cfg, stdout, stderr)
	case "diff":
		return runDiff(args[1:], stdout, stderr)
	case "ct":
		return runCT(ctx, args[1:], cfg, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.Version)
		return exitOK
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usageText)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		fmt.Fprint(stderr, usageText)
		return exitUsage
	}
}
