// Package version reports build provenance for tlint binaries.
//
// Release builds stamp the variables below through ldflags
// (-X github.com/jmylchreest/tlint/internal/version.Version=... and
// friends); plain go-build binaries fall back on the VCS metadata the
// toolchain embeds.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
)

const ApplicationName = "tlint"

var (
	Version = "0.0.0"
	Commit  = ""
	Date    = ""
)

func init() {
	if Commit != "" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.time":
			Date = s.Value
		}
	}
}

// Info is the machine-readable shape of the version report.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

// shortCommit trims a full SHA down to a display length.
func shortCommit() string {
	if len(Commit) > 8 {
		return Commit[:8]
	}
	return Commit
}

// String renders the full one-line version report.
func String() string {
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s version %s (commit %s, built %s, %s)",
			ApplicationName, Version, c, Date, runtime.Version())
	}
	return fmt.Sprintf("%s version %s (%s)", ApplicationName, Version, runtime.Version())
}

// Short is the compact form used in usage output.
func Short() string {
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s (%s)", Version, c)
	}
	return Version
}

// JSON renders the version report for machine consumption.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
