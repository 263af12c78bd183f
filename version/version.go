// Package version reports the version of the tunesync binaries.
package version

import (
	"runtime/debug"
	"sync"
)

// Version can be stamped at build time:
// go build -ldflags "-X github.com/vsariola/tunesync/version.Version=$(git describe --dirty)"
var Version string

var revision = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	rev, modified := "", false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev != "" && modified {
		rev += "-dirty"
	}
	return rev
})

// String returns the stamped version, else the short VCS revision the binary
// was built from, else "devel".
func String() string {
	if Version != "" {
		return Version
	}
	if rev := revision(); rev != "" {
		return rev
	}
	return "devel"
}

// Agent returns "name/version", used to identify subscribers to a master.
func Agent(name string) string {
	return name + "/" + String()
}
