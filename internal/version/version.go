// Package version reports the build the binary came from.
package version

import "fmt"

// Set with -ldflags "-X github.com/hazz-dev/dashprobe/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information for the version command.
func String() string {
	return fmt.Sprintf("dashprobe %s (commit %s, built %s)", Version, Commit, Date)
}
