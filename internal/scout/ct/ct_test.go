package ct

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/repos/ctcache"
)

const crtShPayload = `[
	{"name_value": "www.example.com\napi.example.com"},
	{"name_value": "*.cdn.example.com"},
	{"name_value": "WWW.EXAMPLE.COM."},
	{"name_value": "example.com"},
	{"name_value": "other-domain.net"},
	{"name_value": "bad_label.example.com"},
	{"not_name_value": 42}
]`

func newTestServer(t *testing.T, payload string, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		assert.Equal(t, "%.example.com", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("output"))
		w.Write([]byte(payload))
	}))
}

func newTestClient(t *testing.T, baseURL string, cache Cache) *Client {
	t.Helper()
	c, err := New(Options{
		Timeout:   2 * time.Second,
		BaseURL:   baseURL,
		UserAgent: "sdscout-test/1.0",
		Cache:     cache,
		Logger:    log.NewNoopLogger(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresTimeout(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	srv := newTestServer(t, crtShPayload, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", nil)
	subs, summary, err := c.Fetch(context.Background(), "example.com", -1)
	require.NoError(t, err)

	// Wildcards unwrap, the apex and foreign names drop, duplicates and
	// invalid labels are filtered, order follows first appearance.
	assert.Equal(t, []string{"www.example.com", "api.example.com", "cdn.example.com"}, subs)
	assert.Equal(t, 7, summary.RecordsFetched)
	assert.Equal(t, 7, summary.NamesSeen)
	assert.Equal(t, 3, summary.Emitted)
	assert.False(t, summary.CacheHit)
}

func TestFetch_Limit(t *testing.T) {
	srv := newTestServer(t, crtShPayload, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", nil)

	subs, summary, err := c.Fetch(context.Background(), "example.com", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"www.example.com", "api.example.com"}, subs)
	assert.Equal(t, 2, summary.Emitted)

	subs, _, err = c.Fetch(context.Background(), "example.com", 0)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", nil)
	_, _, err := c.Fetch(context.Background(), "example.com", -1)
	assert.Error(t, err)
}

func TestFetch_BadPayloadShape(t *testing.T) {
	srv := newTestServer(t, `{"rows": []}`, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", nil)
	_, _, err := c.Fetch(context.Background(), "example.com", -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected crt.sh response shape")
}

func TestFetch_CacheRoundTrip(t *testing.T) {
	hits := 0
	srv := newTestServer(t, crtShPayload, &hits)
	defer srv.Close()

	store, err := ctcache.Open(filepath.Join(t.TempDir(), "ct.db"), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	c := newTestClient(t, srv.URL+"/", store)

	first, _, err := c.Fetch(context.Background(), "example.com", -1)
	require.NoError(t, err)

	second, summary, err := c.Fetch(context.Background(), "example.com", -1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, summary.CacheHit)
	assert.Equal(t, len(first), summary.Emitted)
	assert.Equal(t, 1, hits)
}

func TestFetch_LimitedFetchBypassesCache(t *testing.T) {
	hits := 0
	srv := newTestServer(t, crtShPayload, &hits)
	defer srv.Close()

	store, err := ctcache.Open(filepath.Join(t.TempDir(), "ct.db"), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	c := newTestClient(t, srv.URL+"/", store)
	for i := 0; i < 2; i++ {
		_, summary, err := c.Fetch(context.Background(), "example.com", 1)
		require.NoError(t, err)
		assert.False(t, summary.CacheHit)
	}
	assert.Equal(t, 2, hits)
}

func TestSubdomainsToLabels(t *testing.T) {
	labels := SubdomainsToLabels([]string{
		"www.example.com",
		"API.example.com.",
		"deep.api.example.com",
		"www.example.com",
		"example.com",
		"unrelated.net",
		"bad_label.example.com",
	}, "example.com")
	assert.Equal(t, []string{"www", "api", "deep.api"}, labels)
}
