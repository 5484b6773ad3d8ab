package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No leading or trailing dots
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.Trim(name, ".")
	return name
}

// ParentZone returns the hostname minus its first label, or "" when the name
// has a single label. For "foo.dev.example.com" it returns "dev.example.com".
func ParentZone(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// IsPublicSuffix reports whether the name is itself a public suffix such as
// "com" or "co.uk". Scanning one of those would brute-force the entire TLD.
func IsPublicSuffix(name string) bool {
	name = CanonicalDNSName(name)
	if name == "" {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(name); err != nil {
		// No registrable domain at or below this name, so the name is a
		// suffix itself (e.g. "com", "co.uk").
		return true
	}
	return false
}
