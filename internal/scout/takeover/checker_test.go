package takeover

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/probe"
)

func TestScoreFingerprint(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		statusCode  int
		fp          Fingerprint
		wantScore   int
		wantPattern string
	}{
		{
			name:       "no match",
			body:       "hello world",
			statusCode: 200,
			fp:         Fingerprint{BodySubstrings: []string{"no such app"}, StatusCodes: []int{404}},
			wantScore:  0,
		},
		{
			name:        "single substring without status",
			body:        "error: no such app",
			statusCode:  200,
			fp:          Fingerprint{BodySubstrings: []string{"no such app"}, StatusCodes: []int{404}},
			wantScore:   70,
			wantPattern: "no such app",
		},
		{
			name:        "single substring with status bonus",
			body:        "error: no such app",
			statusCode:  404,
			fp:          Fingerprint{BodySubstrings: []string{"no such app"}, StatusCodes: []int{404}},
			wantScore:   90,
			wantPattern: "no such app",
		},
		{
			name:        "two substrings one match",
			body:        "the requested url was not found on this server",
			statusCode:  200,
			fp:          Fingerprint{BodySubstrings: []string{"the requested url was not found on this server", "unbounce"}, StatusCodes: []int{404}},
			wantScore:   35,
			wantPattern: "the requested url was not found on this server",
		},
		{
			name:        "two substrings both match with status",
			body:        "unbounce says the requested url was not found on this server",
			statusCode:  404,
			fp:          Fingerprint{BodySubstrings: []string{"the requested url was not found on this server", "unbounce"}, StatusCodes: []int{404}},
			wantScore:   90,
			wantPattern: "the requested url was not found on this server",
		},
		{
			name:       "many substrings floor at 20 each capped at 90",
			body:       "a b c d e f",
			statusCode: 200,
			fp: Fingerprint{BodySubstrings: []string{
				"a", "b", "c", "d", "e", "f",
			}},
			wantScore:   90,
			wantPattern: "a",
		},
		{
			name:        "status bonus capped at 100",
			body:        "a b c d e f",
			statusCode:  404,
			fp:          Fingerprint{BodySubstrings: []string{"a", "b", "c", "d", "e", "f"}, StatusCodes: []int{404}},
			wantScore:   100,
			wantPattern: "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, pattern := scoreFingerprint(tt.body, tt.statusCode, tt.fp)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantPattern, pattern)
		})
	}
}

func TestConfidenceLabel(t *testing.T) {
	assert.Equal(t, "high", confidenceLabel(95))
	assert.Equal(t, "high", confidenceLabel(90))
	assert.Equal(t, "medium", confidenceLabel(89))
	assert.Equal(t, "medium", confidenceLabel(70))
	assert.Equal(t, "low", confidenceLabel(69))
	assert.Equal(t, "low", confidenceLabel(50))
}

func TestNewChecker_RequiresTimeout(t *testing.T) {
	_, err := NewChecker(DefaultCatalog(), 0, "ua")
	assert.Error(t, err)
}

// checkerFor points a Checker at an httptest server by using the server's
// host:port as the probed hostname; the https attempt fails and the http
// attempt reaches the server.
func checkerFor(t *testing.T, catalog Catalog) *Checker {
	t.Helper()
	return &Checker{
		catalog: catalog,
		fetcher: probe.NewFetcher(2*time.Second, "sdscout-test/1.0"),
		logger:  log.NewNoopLogger(),
	}
}

func TestChecker_Check_Finding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html>No Such App</html>"))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	c := checkerFor(t, DefaultCatalog())

	finding := c.Check(host)
	require.NotNil(t, finding)
	assert.Equal(t, "Heroku", finding.Service)
	assert.Equal(t, 90, finding.Score)
	assert.Equal(t, "high", finding.Confidence)
	assert.Equal(t, "2026-02-09", finding.FingerprintVersion)
	assert.Equal(t, "no such app", finding.MatchedPattern)
	assert.Equal(t, http.StatusNotFound, finding.StatusCode)
	assert.Equal(t, "http://"+host+"/", finding.URL)
}

func TestChecker_Check_BelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("the requested url was not found on this server"))
	}))
	defer srv.Close()

	// One of two Unbounce substrings without the status bonus scores 35,
	// below the finding threshold.
	host := strings.TrimPrefix(srv.URL, "http://")
	c := checkerFor(t, DefaultCatalog())
	assert.Nil(t, c.Check(host))
}

func TestChecker_Check_NoServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := checkerFor(t, DefaultCatalog())
	assert.Nil(t, c.Check(host))
}
