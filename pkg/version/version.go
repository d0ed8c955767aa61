// Package version exposes build-time version metadata for grizabella.
package version

import "fmt"

// Version and CommitHash are set at build time with -ldflags. Defaults are
// useful for local development.
var (
	Version    string = "dev"
	CommitHash string = "unknown"
)

// Describe returns a human-readable version string.
func Describe() string {
	return fmt.Sprintf("grizabella %s (%s)", Version, CommitHash)
}
