// Package version provides build-time version information.
// These variables are set at build time via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version or branch name if not a tagged build.
	Version = "dev"

	// GitCommit is the short git commit SHA.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetInfo returns the current version info.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable version string.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}
