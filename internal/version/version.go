// Package version holds build-time version information for the assistme
// binaries. Release builds inject the variables via -ldflags:
//
// -X github.com/ferro-labs/assistme/internal/version.Version=v3.0.0
// -X github.com/ferro-labs/assistme/internal/version.Commit=abc1234
// -X github.com/ferro-labs/assistme/internal/version.Date=2026-10-01T00:00:00Z
package version

import "fmt"

// APIVersion is the version reported by the health endpoint. It tracks the
// HTTP contract, not the binary.
const APIVersion = "3.0.0"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line human-readable version string, e.g.:
//
// v3.0.0 (commit abc1234, built 2026-10-01T12:00:00Z)
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// Short returns just the version tag, e.g. "v3.0.0" or "dev".
func Short() string {
	return Version
}
