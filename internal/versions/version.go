// Package versions reports the build of the gitstatusd binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknown = "unknown"

// Set at build time with -ldflags "-X github.com/ddr-tools/gitstatusd/internal/versions.Version=..."
var (
	Version   = "dev"
	Commit    = unknown
	BuildDate = unknown
)

// VersionInfo describes the running binary
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// String renders the one-line form printed by "gitstatusd version"
func (v VersionInfo) String() string {
	return fmt.Sprintf("gitstatusd %s (commit %s, built %s, %s %s)",
		v.Version, v.Commit, v.BuildDate, v.GoVersion, v.Platform)
}

// GetVersionInfo returns the build information, filling gaps from the embedded VCS stamp
func GetVersionInfo() VersionInfo {
	var settings []debug.BuildSetting
	if info, ok := debug.ReadBuildInfo(); ok {
		settings = info.Settings
	}
	return versionInfo(Version, Commit, BuildDate, settings)
}

func versionInfo(version, commit, buildDate string, settings []debug.BuildSetting) VersionInfo {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if commit == unknown {
				commit = s.Value
			}
		case "vcs.time":
			if buildDate == unknown {
				buildDate = s.Value
			}
		}
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	// dev builds are named after their commit
	if version == "dev" && commit != unknown {
		version = fmt.Sprintf("dev-%.8s", commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
