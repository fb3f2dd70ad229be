// Package version carries build metadata set with -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X github.com/banshee-data/wakewatch/internal/version.Version=v0.3.0"
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and logs.
func String() string {
	return fmt.Sprintf("wakewatch %s (%s, built %s)", Version, GitSHA, BuildTime)
}
