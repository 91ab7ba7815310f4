// Package version holds build information, set with -ldflags -X at link time.
package version

import "fmt"

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the build information for display.
func String() string {
	return fmt.Sprintf("docalign %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
