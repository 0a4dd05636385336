// Package version holds build metadata stamped in at link time.
package version

// Overridden via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
