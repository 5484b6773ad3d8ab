// Package probe is the shared HTTP fetcher used by the takeover checker and
// the wildcard false-positive suppressor. It reads at most the first 16 KiB
// of a body and lowercases it; HTTP error statuses are responses, not
// failures.
package probe

import (
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxBodyBytes caps how much of a response body is read.
const MaxBodyBytes = 16 * 1024

// Response is a fetched page: status code plus the truncated, lowercased body.
type Response struct {
	StatusCode int
	Body       string
}

// Fetcher issues bounded GET requests with a stable User-Agent.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher builds a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get fetches a URL. Network and TLS failures return an error; any HTTP
// status is a successful fetch.
func (f *Fetcher) Get(url string) (Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		// A partial body is still usable for substring matching.
		if len(body) == 0 {
			return Response{}, err
		}
	}
	return Response{
		StatusCode: resp.StatusCode,
		Body:       strings.ToLower(string(body)),
	}, nil
}
