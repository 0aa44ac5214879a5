// Package version reports how the binary was built. Values injected with
//
//	-ldflags "-X github.com/danihodovic/superrequests/version.gitVersion=v0.2.0"
//
// win; otherwise the VCS stamps recorded by the go tool are used.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/gosuri/uitable"
)

// Product is the name sent in the default User-Agent.
const Product = "superrequests"

var (
	gitVersion   = ""
	buildDate    = ""
	gitCommit    = ""
	gitTreeState = ""
)

const develVersion = "v0.0.0-devel"

// Info describes the build.
type Info struct {
	GitVersion   string `json:"gitVersion"`
	GitCommit    string `json:"gitCommit,omitempty"`
	GitTreeState string `json:"gitTreeState,omitempty"`
	BuildDate    string `json:"buildDate,omitempty"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

func (info Info) String() string {
	if info.GitTreeState == "dirty" {
		return info.GitVersion + "-dirty"
	}
	return info.GitVersion
}

func (info Info) ToJSONIndent() (string, error) {
	s, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal version info: %w", err)
	}
	return string(s), nil
}

// Text renders info as an aligned two-column table, skipping unknown fields.
func (info Info) Text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	rows := [][2]string{
		{"version:", info.String()},
		{"commit:", info.GitCommit},
		{"buildDate:", info.BuildDate},
		{"goVersion:", info.GoVersion},
		{"compiler:", info.Compiler},
		{"platform:", info.Platform},
	}
	for _, r := range rows {
		if r[1] != "" {
			table.AddRow(r[0], r[1])
		}
	}
	return table.String()
}

func Get() Info {
	info := Info{
		GitVersion:   gitVersion,
		GitCommit:    gitCommit,
		GitTreeState: gitTreeState,
		BuildDate:    buildDate,
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	if info.GitVersion == "" {
		info.GitVersion = develVersion
	}
	return info
}

// fillFromBuildInfo sets fields the linker flags left empty.
func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.GitVersion == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.GitVersion = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.GitCommit == "":
			info.GitCommit = s.Value
		case s.Key == "vcs.time" && info.BuildDate == "":
			info.BuildDate = s.Value
		case s.Key == "vcs.modified" && info.GitTreeState == "":
			info.GitTreeState = "clean"
			if s.Value == "true" {
				info.GitTreeState = "dirty"
			}
		}
	}
}

// UserAgent is the User-Agent a session sends unless configured otherwise,
// e.g. "superrequests/v0.2.0 (linux/amd64)".
func UserAgent() string {
	info := Get()
	return fmt.Sprintf("%s/%s (%s)", Product, info.String(), info.Platform)
}
