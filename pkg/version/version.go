// Package version holds pubrag build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the binary name.
const Name = "pubrag"

// Set via ldflags at build time:
//
//	-X github.com/Aman-CERP/pubrag/pkg/version.Version=0.3.0
//	-X github.com/Aman-CERP/pubrag/pkg/version.Commit=$(git rev-parse --short HEAD)
//	-X github.com/Aman-CERP/pubrag/pkg/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// GoVersion is the Go version the binary was built with.
var GoVersion = runtime.Version()

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Short returns the version. Without ldflags it falls back to the module
// version recorded by `go install`, then to the VCS revision.
func Short() string {
	if Version != "dev" {
		return Version
	}
	bi, ok := readBuildInfo()
	if !ok {
		return Version
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return Version
}

// revision returns Commit, or the vcs.revision build setting when Commit
// was not injected.
func revision() string {
	if Commit != "unknown" {
		return Commit
	}
	bi, ok := readBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return Commit
}

// String returns a formatted version string with all build info.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Short(), revision(), Date, GoVersion)
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Short(),
		Commit:    revision(),
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
