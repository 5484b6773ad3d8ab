// Package takeover detects dangling-host takeover candidates by matching
// HTTP error pages against a fingerprint catalog.
package takeover

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Fingerprint describes one hosted service's unclaimed-resource error page.
type Fingerprint struct {
	Service        string   `json:"service" validate:"required"`
	BodySubstrings []string `json:"body_substrings" validate:"required,min=1"`
	StatusCodes    []int    `json:"status_codes"`
}

// Catalog is a versioned set of fingerprints.
type Catalog struct {
	Version      string        `json:"version" validate:"required"`
	Fingerprints []Fingerprint `json:"fingerprints" validate:"required,min=1,dive"`
}

// DefaultCatalog returns the embedded fingerprint set.
func DefaultCatalog() Catalog {
	return Catalog{
		Version: "2026-02-09",
		Fingerprints: []Fingerprint{
			{
				Service:        "GitHub Pages",
				BodySubstrings: []string{"there isn't a github pages site here."},
				StatusCodes:    []int{404},
			},
			{
				Service:        "Heroku",
				BodySubstrings: []string{"no such app"},
				StatusCodes:    []int{404},
			},
			{
				Service:        "Shopify",
				BodySubstrings: []string{"sorry, this shop is currently unavailable"},
				StatusCodes:    []int{402, 403, 404},
			},
			{
				Service:        "Fastly",
				BodySubstrings: []string{"fastly error: unknown domain"},
				StatusCodes:    []int{503},
			},
			{
				Service:        "Unbounce",
				BodySubstrings: []string{"the requested url was not found on this server", "unbounce"},
				StatusCodes:    []int{404},
			},
		},
	}
}

// LoadCatalog reads and validates a fingerprint catalog from a JSON file.
// Body substrings are trimmed and lowercased; empty ones are dropped.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog JSON.
func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("invalid fingerprint catalog: %w", err)
	}

	catalog.Version = strings.TrimSpace(catalog.Version)
	for i := range catalog.Fingerprints {
		fp := &catalog.Fingerprints[i]
		fp.Service = strings.TrimSpace(fp.Service)
		var cleaned []string
		for _, s := range fp.BodySubstrings {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		fp.BodySubstrings = cleaned
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&catalog); err != nil {
		return Catalog{}, fmt.Errorf("invalid fingerprint catalog: %w", err)
	}
	return catalog, nil
}
