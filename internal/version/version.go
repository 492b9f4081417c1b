// Package version reports build metadata injected with -ldflags.
package version

import (
	"fmt"
	"strings"
)

// Values are set at build time, for example
// -ldflags "-X projsync/internal/version.Version=1.2.0".
var (
	Version   = "dev"
	GitCommit = ""
	Built     = ""
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	Built     string `json:"built,omitempty"`
}

func Get() Info {
	return Info{
		Version:   strings.TrimSpace(Version),
		GitCommit: strings.TrimSpace(GitCommit),
		Built:     strings.TrimSpace(Built),
	}
}

// IsDev reports whether the binary was built without a release version.
func (i Info) IsDev() bool {
	return i.Version == "" || i.Version == "dev"
}

// Line formats the version output of program.
func (i Info) Line(program string) string {
	if i.IsDev() {
		return program + " dev"
	}
	line := fmt.Sprintf("%s version %s", program, i.Version)
	var details []string
	if i.GitCommit != "" {
		details = append(details, i.GitCommit)
	}
	if i.Built != "" {
		details = append(details, "built "+i.Built)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}
