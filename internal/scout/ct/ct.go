// Package ct discovers existing subdomains from certificate-transparency
// logs via crt.sh. Discovered names seed a scan wordlist alongside the
// user-provided labels.
package ct

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/domain"
)

// DefaultBaseURL is the crt.sh endpoint.
const DefaultBaseURL = "https://crt.sh/"

// maxResponseBytes caps the crt.sh payload; large apexes return tens of
// megabytes of JSON.
const maxResponseBytes = 256 << 20

// Cache is the optional persistence layer for fetch results.
type Cache interface {
	Get(apex string) ([]string, bool, error)
	Put(apex string, subdomains []string) error
}

// FetchSummary describes one CT fetch.
type FetchSummary struct {
	RecordsFetched int   `json:"records_fetched"`
	NamesSeen      int   `json:"names_seen"`
	Emitted        int   `json:"emitted"`
	CacheHit       bool  `json:"cache_hit"`
	ElapsedMs      int64 `json:"elapsed_ms"`
}

// Options configures a Client.
type Options struct {
	// Timeout bounds the whole fetch; required.
	Timeout time.Duration
	// BaseURL overrides the crt.sh endpoint (tests).
	BaseURL string
	// UserAgent for the fetch request.
	UserAgent string
	// Cache, when set, short-circuits repeat fetches for the same apex.
	// Limited fetches bypass it.
	Cache Cache
	// Logger defaults to the global logger.
	Logger log.Logger
}

// Client fetches subdomains of an apex from certificate-transparency logs.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	cache     Cache
	logger    log.Logger
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("ct timeout must be > 0")
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		baseURL:   base,
		userAgent: opts.UserAgent,
		cache:     opts.Cache,
		logger:    logger,
	}, nil
}

// Fetch returns subdomains of apex seen in CT logs, ordered by first
// appearance, deduplicated, and validated. A negative limit means
// unlimited; limit zero returns nothing.
func (c *Client) Fetch(ctx context.Context, apex string, limit int) ([]string, FetchSummary, error) {
	start := time.Now()

	// a capped fetch may stop early, so only unlimited fetches use the cache
	useCache := c.cache != nil && limit < 0
	if useCache {
		cached, hit, err := c.cache.Get(apex)
		if err != nil {
			c.logger.Warn(map[string]any{"apex": apex, "error": err.Error()}, "ct cache read failed")
		} else if hit {
			return cached, FetchSummary{
				Emitted:   len(cached),
				CacheHit:  true,
				ElapsedMs: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	rows, err := c.fetchRows(ctx, apex)
	if err != nil {
		return nil, FetchSummary{}, err
	}

	subdomains, namesSeen := extractSubdomains(rows, apex, limit)

	if useCache {
		if err := c.cache.Put(apex, subdomains); err != nil {
			c.logger.Warn(map[string]any{"apex": apex, "error": err.Error()}, "ct cache write failed")
		}
	}

	summary := FetchSummary{
		RecordsFetched: len(rows),
		NamesSeen:      namesSeen,
		Emitted:        len(subdomains),
		ElapsedMs:      time.Since(start).Milliseconds(),
	}
	c.logger.Debug(map[string]any{
		"apex":    apex,
		"records": summary.RecordsFetched,
		"emitted": summary.Emitted,
	}, "ct fetch complete")
	return subdomains, summary, nil
}

// ctRow is the subset of a crt.sh row we consume.
type ctRow struct {
	NameValue string `json:"name_value"`
}

func (c *Client) fetchRows(ctx context.Context, apex string) ([]ctRow, error) {
	u := c.baseURL + "?q=" + url.QueryEscape("%."+apex) + "&output=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ct fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ct fetch: crt.sh returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ct fetch: %w", err)
	}
	var rows []ctRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unexpected crt.sh response shape: %w", err)
	}
	return rows, nil
}

// extractSubdomains walks the certificate names, unwraps wildcards, keeps
// valid names strictly under the apex, and stops at limit when limit >= 0.
func extractSubdomains(rows []ctRow, apex string, limit int) ([]string, int) {
	var subdomains []string
	seen := make(map[string]struct{})
	namesSeen := 0
	suffix := "." + apex

	for _, row := range rows {
		for _, rawName := range strings.Split(row.NameValue, "\n") {
			name := utils.CanonicalDNSName(rawName)
			if name == "" {
				continue
			}
			namesSeen++
			name = strings.TrimPrefix(name, "*.")
			if name == apex || !strings.HasSuffix(name, suffix) {
				continue
			}
			if _, err := domain.NormalizeLabel(strings.TrimSuffix(name, suffix)); err != nil {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			subdomains = append(subdomains, name)
			if limit >= 0 && len(subdomains) >= limit {
				return subdomains, namesSeen
			}
		}
	}
	return subdomains, namesSeen
}

// SubdomainsToLabels converts full subdomain names under apex into scan
// labels, preserving order and dropping duplicates and invalid names.
func SubdomainsToLabels(subdomains []string, apex string) []string {
	var labels []string
	seen := make(map[string]struct{})
	suffix := "." + apex
	for _, name := range subdomains {
		item := utils.CanonicalDNSName(name)
		if item == apex || !strings.HasSuffix(item, suffix) {
			continue
		}
		label := strings.TrimSuffix(item, suffix)
		if label == "" {
			continue
		}
		normalized, err := domain.NormalizeLabel(label)
		if err != nil {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		labels = append(labels, normalized)
	}
	return labels
}
