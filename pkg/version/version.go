package version

import "fmt"

// Injected at build time via -ldflags "-X safenet/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is what `safenetctl version -o json` prints.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

func GetInfo() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}

// GetShortCommit returns the short git commit hash (first 7 characters)
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String renders a one-line banner such as "safenetd dev (abc1234, built unknown)".
func String(binary string) string {
	return fmt.Sprintf("%s %s (%s, built %s)", binary, Version, GetShortCommit(), BuildDate)
}
