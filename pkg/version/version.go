// Package version exposes build-time version information.
package version

import "fmt"

var (
	// Version is set at build time via -ldflags.
	Version = "dev"
	// GitCommit is the git commit SHA that was built.
	GitCommit = "unknown"
)

// Info holds version metadata for the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the version information.
func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}

func (i Info) String() string {
	return fmt.Sprintf("skillrouter %s (%s)", i.Version, i.GitCommit)
}
