package takeover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Equal(t, "2026-02-09", catalog.Version)
	require.Len(t, catalog.Fingerprints, 5)

	services := make([]string, 0, len(catalog.Fingerprints))
	for _, fp := range catalog.Fingerprints {
		services = append(services, fp.Service)
		assert.NotEmpty(t, fp.BodySubstrings, "service %s", fp.Service)
	}
	assert.Equal(t, []string{"GitHub Pages", "Heroku", "Shopify", "Fastly", "Unbounce"}, services)
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`{
		"version": " v1 ",
		"fingerprints": [
			{
				"service": " S3 ",
				"body_substrings": ["  The Specified Bucket Does Not Exist  ", "", "   "],
				"status_codes": [404]
			}
		],
		"extra_key": "tolerated"
	}`)

	catalog, err := ParseCatalog(data)
	require.NoError(t, err)
	assert.Equal(t, "v1", catalog.Version)
	require.Len(t, catalog.Fingerprints, 1)
	assert.Equal(t, "S3", catalog.Fingerprints[0].Service)
	assert.Equal(t, []string{"the specified bucket does not exist"}, catalog.Fingerprints[0].BodySubstrings)
	assert.Equal(t, []int{404}, catalog.Fingerprints[0].StatusCodes)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{"},
		{name: "missing version", data: `{"fingerprints":[{"service":"x","body_substrings":["y"]}]}`},
		{name: "no fingerprints", data: `{"version":"v1","fingerprints":[]}`},
		{name: "fingerprint without service", data: `{"version":"v1","fingerprints":[{"body_substrings":["y"]}]}`},
		{name: "substrings all blank", data: `{"version":"v1","fingerprints":[{"service":"x","body_substrings":["  "]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "v2",
		"fingerprints": [{"service": "Pantheon", "body_substrings": ["404 unknown site"]}]
	}`), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", catalog.Version)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
