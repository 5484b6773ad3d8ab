// Package version carries the release version string.
package version

// Version is the sdscout release version.
const Version = "0.3.0"
