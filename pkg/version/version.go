// Package version holds the release number of piplite and the build
// metadata injected through ldflags.
package version

import "fmt"

// Number is the semantic version of piplite. It is a constant so that the
// facade can re-export it unchanged.
const Number = "0.6.0"

var (
	// CommitHash is the git SHA embedded at build time.
	CommitHash = "unknown"
	// BuildDate is the UTC build timestamp embedded at build time.
	BuildDate = "unknown"
)

// Summary returns a human-friendly version string for CLI output.
func Summary() string {
	return Number
}

// Full returns the version together with commit and build date.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Number, CommitHash, BuildDate)
}
