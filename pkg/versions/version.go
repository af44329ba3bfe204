// Package versions reports build version information, injected at build time
// via ldflags with a runtime/debug fallback for plain go-build binaries.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknownStr = "unknown"

// Build-time values, overridden via ldflags.
var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the git commit the build was produced from.
	Commit = unknownStr
	// BuildDate is the RFC-3339 build timestamp.
	BuildDate = unknownStr
)

// VersionInfo is the full build description.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo assembles the version info for this binary.
func GetVersionInfo() VersionInfo {
	version, commit, buildDate := Version, Commit, BuildDate

	if commit == unknownStr {
		if vcsCommit, vcsTime, ok := vcsInfo(); ok {
			commit = vcsCommit
			if buildDate == unknownStr && vcsTime != "" {
				buildDate = vcsTime
			}
		}
	}

	// Development builds are named after the commit they came from.
	if version == "dev" {
		short := commit
		if len(short) > 8 {
			short = short[:8]
		}
		version = "build-" + short
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders the info as a multi-line report for the version command.
func (v VersionInfo) String() string {
	return fmt.Sprintf("Version:    %s\nCommit:     %s\nBuilt:      %s\nGo version: %s\nPlatform:   %s",
		v.Version, v.Commit, v.BuildDate, v.GoVersion, v.Platform)
}

// vcsInfo pulls commit metadata embedded by the Go toolchain.
func vcsInfo() (commit, buildTime string, ok bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", "", false
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
		case "vcs.time":
			buildTime = setting.Value
		}
	}
	return commit, buildTime, commit != ""
}
