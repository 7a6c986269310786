package contracts

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// APIVersion prefixes every HTTP route
const APIVersion = "v1"

// Build metadata, overridable with
//
//	-ldflags "-X captainpulse/pkg/contracts.Version=1.4.1 -X captainpulse/pkg/contracts.GitCommit=$(git rev-parse HEAD)"
//
// When unset, GitCommit and BuildTime fall back to the VCS stamp the Go
// toolchain embeds.
var (
	Version   = "1.4.0"
	GitCommit = ""
	BuildTime = ""
)

// VersionInfo is the body of GET /api/v1/version
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GitCommit  string `json:"git_commit"`
	Modified   bool   `json:"modified,omitempty"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// GetVersionInfo describes the running binary
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:    Version,
		APIVersion: APIVersion,
		GitCommit:  GitCommit,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

// GetFullVersionString is the one-line banner printed by -version and at
// startup.
func GetFullVersionString() string {
	info := GetVersionInfo()
	commit := info.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if info.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("CaptainPulse v%s (commit %s, built %s, %s %s)",
		info.Version, commit, info.BuildTime, info.GoVersion, info.Platform)
}
