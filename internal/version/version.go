// Package version holds build information for issuetrack, injected with
//
//	-ldflags "-X github.com/SonarSource/sonarlint-core-sub018/internal/version.Version=x.y.z
//	          -X github.com/SonarSource/sonarlint-core-sub018/internal/version.Commit=$(git rev-parse HEAD)
//	          -X github.com/SonarSource/sonarlint-core-sub018/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// and falling back to the VCS stamp of the Go build info.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "0.0.0"
	Commit  = "unknown"
	Date    = "unknown"
)

func init() {
	if Commit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			Commit = setting.Value
		case "vcs.time":
			Date = setting.Value
		}
	}
}

const ApplicationName = "issuetrack"

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// ShortCommit is the first 8 characters of the commit, or "" when unknown.
func ShortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String is the human-readable version line.
func String() string {
	info := GetInfo()
	if sha := ShortCommit(); sha != "" {
		return fmt.Sprintf("%s %s (commit %s, built %s, %s, %s)",
			ApplicationName, info.Version, sha, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
