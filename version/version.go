// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	return fmt.Sprintf("scout %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
}

// Short returns the tagged version, or the abbreviated commit for dev builds.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if len(CommitHash) >= 7 {
		return CommitHash[:7]
	}
	return CommitHash
}

// Compatible reports whether a peer built at version other can exchange tool
// messages with this build: same major, and same minor while major is 0.
// Untagged builds on either side are assumed compatible.
func Compatible(other string) bool {
	ours, err := semver.NewVersion(Version)
	if err != nil {
		return true
	}
	theirs, err := semver.NewVersion(other)
	if err != nil {
		return true
	}
	if ours.Major() != theirs.Major() {
		return false
	}
	return ours.Major() != 0 || ours.Minor() == theirs.Minor()
}
