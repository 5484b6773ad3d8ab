package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "example.com", want: "example.com"},
		{name: "uppercase folded", input: "Example.COM", want: "example.com"},
		{name: "surrounding whitespace and dots", input: "  example.com.  ", want: "example.com"},
		{name: "subdomain apex", input: "corp.example.co.uk", want: "corp.example.co.uk"},
		{name: "empty", input: "", wantErr: true},
		{name: "only dots", input: "...", wantErr: true},
		{name: "single label", input: "localhost", wantErr: true},
		{name: "underscore", input: "bad_host.example.com", wantErr: true},
		{name: "leading hyphen label", input: "-bad.example.com", wantErr: true},
		{name: "trailing hyphen label", input: "bad-.example.com", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 64) + strings.Repeat(".a", 100), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "www", want: "www"},
		{name: "uppercase folded", input: "API", want: "api"},
		{name: "dotted label", input: "foo.dev", want: "foo.dev"},
		{name: "inner hyphen", input: "my-app", want: "my-app"},
		{name: "digits", input: "web01", want: "web01"},
		{name: "dots trimmed", input: ".www.", want: "www"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "leading hyphen", input: "-www", wantErr: true},
		{name: "trailing hyphen", input: "www-", wantErr: true},
		{name: "underscore", input: "my_app", wantErr: true},
		{name: "empty inner label", input: "a..b", wantErr: true},
		{name: "label over 63 chars", input: strings.Repeat("a", 64), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLabel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLabel_MaxLengthBoundary(t *testing.T) {
	label63 := strings.Repeat("a", 63)
	got, err := NormalizeLabel(label63)
	require.NoError(t, err)
	assert.Equal(t, label63, got)
}
