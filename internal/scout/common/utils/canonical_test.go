package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalDNSName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already canonical", input: "www.example.com", want: "www.example.com"},
		{name: "uppercase", input: "WWW.Example.COM", want: "www.example.com"},
		{name: "trailing dot", input: "www.example.com.", want: "www.example.com"},
		{name: "leading dot", input: ".www.example.com", want: "www.example.com"},
		{name: "whitespace", input: "  www.example.com  ", want: "www.example.com"},
		{name: "empty", input: "", want: ""},
		{name: "only dots", input: "...", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalDNSName(tt.input))
		})
	}
}

func TestParentZone(t *testing.T) {
	assert.Equal(t, "example.com", ParentZone("www.example.com"))
	assert.Equal(t, "dev.example.com", ParentZone("foo.dev.example.com"))
	assert.Equal(t, "com", ParentZone("example.com"))
	assert.Equal(t, "", ParentZone("com"))
}

func TestIsPublicSuffix(t *testing.T) {
	assert.True(t, IsPublicSuffix("com"))
	assert.True(t, IsPublicSuffix("co.uk"))
	assert.False(t, IsPublicSuffix("example.com"))
	assert.False(t, IsPublicSuffix("example.co.uk"))
	assert.False(t, IsPublicSuffix(""))
}
