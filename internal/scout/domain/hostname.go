// Package domain holds the core value types of sdscout: hostnames,
// nameservers, resolution results, takeover findings, and the resolver
// error taxonomy. Types validate on construction.
package domain

import (
	"fmt"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
)

const maxHostnameLen = 253

// NormalizeDomain canonicalizes and validates an apex domain. A domain must
// contain at least two labels ("example.com", not "localhost").
func NormalizeDomain(raw string) (string, error) {
	name := utils.CanonicalDNSName(raw)
	if name == "" {
		return "", fmt.Errorf("domain must be non-empty")
	}
	if err := validateHostname(name, false, "domain"); err != nil {
		return "", err
	}
	return name, nil
}

// NormalizeLabel canonicalizes and validates a wordlist label. A label may
// itself contain dots ("foo.dev"), each component validating independently.
func NormalizeLabel(raw string) (string, error) {
	label := utils.CanonicalDNSName(raw)
	if label == "" {
		return "", fmt.Errorf("label must be non-empty")
	}
	if err := validateHostname(label, true, "label"); err != nil {
		return "", err
	}
	return label, nil
}

// validateHostname enforces RFC 1035 LDH rules on an already-canonical name.
func validateHostname(value string, allowSingleLabel bool, valueName string) error {
	if len(value) > maxHostnameLen {
		return fmt.Errorf("%s is too long (max %d characters)", valueName, maxHostnameLen)
	}
	labels := splitLabels(value)
	if !allowSingleLabel && len(labels) < 2 {
		return fmt.Errorf("%s must contain at least one dot", valueName)
	}
	for _, label := range labels {
		if !validLDHLabel(label) {
			return fmt.Errorf("invalid %s: %q", valueName, value)
		}
	}
	return nil
}

func splitLabels(value string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == '.' {
			labels = append(labels, value[start:i])
			start = i + 1
		}
	}
	return labels
}

// validLDHLabel reports whether the label matches
// ^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$ (input is already lowercased).
func validLDHLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(label)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
