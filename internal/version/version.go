// Package version carries the build identity stamped in via ldflags.
package version

// The release pipeline overrides these with -ldflags "-X ...". The fallbacks
// identify a local build.
var (
	Version = "v0.3.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)
