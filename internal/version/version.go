// Package version provides the playground version string.
// The version is set at build time via -ldflags.
package version

import "fmt"

// Version is the current playground version.
// Override at build time: go build -ldflags "-X github.com/flashdb/playground/internal/version.Version=1.1.0"
var Version = "1.0.0"

// BuildTime is the build timestamp.
// Override at build time: go build -ldflags "-X github.com/flashdb/playground/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = "unknown"

// String returns the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("playground v%s (built %s)", Version, BuildTime)
}
