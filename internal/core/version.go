package core

import (
	"runtime/debug"
	"strings"
)

// Version is resolved at init from build info: the module version for tagged
// builds, otherwise the VCS revision.
var Version = "devel"

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
		return
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	Version = "devel-" + revision
	if dirty {
		Version += "-dirty"
	}
}

// FormatVersion strips the "v" prefix from tagged versions for display.
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}
