package version

import (
	"runtime/debug"
	"strings"
)

// Set via -ldflags "-X github.com/fmueller/voxserve/internal/version.Version=...".
var (
	Version = "0.1.0"
	Commit  = ""
)

// Resolve returns Version, suffixed with the short VCS revision (and
// "-dirty") when the binary was built from a checkout without ldflags.
func Resolve() string {
	info, _ := debug.ReadBuildInfo()
	return resolve(Version, Commit, info)
}

func resolve(base, commit string, info *debug.BuildInfo) string {
	if base == "" {
		base = "0.0.0"
	}

	revision, dirty := strings.TrimSpace(commit), false
	if revision == "" && info != nil {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
	}

	if revision == "" {
		return base
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	return base + "+" + revision
}
