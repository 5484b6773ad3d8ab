package takeover

import (
	"fmt"
	"strings"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/probe"
)

// Scores below this threshold never produce a finding.
const minScore = 50

// Checker probes candidate hosts over HTTPS then HTTP and scores their
// responses against the catalog.
type Checker struct {
	catalog Catalog
	fetcher *probe.Fetcher
	logger  log.Logger
}

// NewChecker builds a Checker. The timeout applies per HTTP request.
func NewChecker(catalog Catalog, timeout time.Duration, userAgent string) (*Checker, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("takeover timeout must be > 0")
	}
	return &Checker{
		catalog: catalog,
		fetcher: probe.NewFetcher(timeout, userAgent),
		logger:  log.GetLogger(),
	}, nil
}

// Check fetches both schemes for the host and returns the highest-scoring
// finding, or nil. A failed fetch on one scheme does not prevent the other.
func (c *Checker) Check(hostname string) *domain.TakeoverFinding {
	var best *domain.TakeoverFinding

	for _, scheme := range []string{"https", "http"} {
		url := fmt.Sprintf("%s://%s/", scheme, hostname)
		resp, err := c.fetcher.Get(url)
		if err != nil {
			c.logger.Debug(map[string]any{"url": url, "error": err.Error()}, "takeover probe fetch failed")
			continue
		}

		for _, fp := range c.catalog.Fingerprints {
			score, pattern := scoreFingerprint(resp.Body, resp.StatusCode, fp)
			if score < minScore {
				continue
			}
			if best != nil && score <= best.Score {
				continue
			}
			best = &domain.TakeoverFinding{
				Service:            fp.Service,
				Confidence:         confidenceLabel(score),
				Score:              score,
				FingerprintVersion: c.catalog.Version,
				MatchedPattern:     pattern,
				StatusCode:         resp.StatusCode,
				URL:                url,
			}
		}
	}

	return best
}

// scoreFingerprint rates a response against one fingerprint. Substring
// matching is case-insensitive (bodies arrive lowercased); a status-code
// match adds a bonus on top of the substring base.
func scoreFingerprint(body string, statusCode int, fp Fingerprint) (int, string) {
	var matched []string
	for _, pattern := range fp.BodySubstrings {
		if strings.Contains(body, pattern) {
			matched = append(matched, pattern)
		}
	}
	if len(matched) == 0 {
		return 0, ""
	}

	perPattern := 70 / len(fp.BodySubstrings)
	if perPattern < 20 {
		perPattern = 20
	}
	score := perPattern * len(matched)
	if score > 90 {
		score = 90
	}

	if len(fp.StatusCodes) > 0 {
		for _, code := range fp.StatusCodes {
			if code == statusCode {
				score += 20
				if score > 100 {
					score = 100
				}
				break
			}
		}
	}

	return score, matched[0]
}

func confidenceLabel(score int) string {
	switch {
	case score >= 90:
		return "high"
	case score >= 70:
		return "medium"
	default:
		return "low"
	}
}
