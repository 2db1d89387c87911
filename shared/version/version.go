// Package version reports the build identity of the running node binary.
package version

import "fmt"

const (
	major = 0
	minor = 1
	patch = 0
)

// GitCommit is stamped at build time via -ldflags; left empty in dev builds.
var GitCommit = ""

// Version returns the semantic version of this build.
func Version() string {
	return fmt.Sprintf("v%d.%d.%d", major, minor, patch)
}

// String returns the full version string including commit, used in startup logs.
func String() string {
	if GitCommit == "" {
		return Version() + "+dev"
	}
	return fmt.Sprintf("%s+%s", Version(), GitCommit)
}
