package manifest

import (
	"runtime/debug"
	"strings"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

const appName = "atlas-crawl"

// CaptureProducer identifies the binary that produced the archive (spec
// §4.13: app name, semver, build, git hash, command line). The module
// version and VCS revision come from runtime/debug.ReadBuildInfo — the
// standard library's own mechanism for this, since there is no
// third-party replacement for reading the Go toolchain's embedded build
// metadata.
func CaptureProducer(version string) types.Producer {
	p := types.Producer{App: appName, Version: version}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return p
	}
	p.Module = info.Main.Path

	var revision, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if p.Version == "" && revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		p.Version = "dev-" + revision + dirty
	}
	return p
}

// CommandLine reassembles the invoking command line for the manifest's
// producer metadata.
func CommandLine(args []string) string {
	return strings.Join(args, " ")
}
