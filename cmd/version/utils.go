package version

import (
	"runtime/debug"
	"strings"
	"time"
)

// Overridden at build time with ldflags, e.g.
// -X github.com/trufnetwork/attestation-registry/cmd/version.Version=v0.3.0
var (
	Version   string
	Commit    string
	BuildTime string
)

const shortHashLength = 9

// vcs returns the revision, commit time and dirty flag stamped by the go
// toolchain, if any.
func vcs() (revision string, revTime time.Time, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", time.Time{}, false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			revTime, _ = time.Parse(time.RFC3339, s.Value)
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return revision, revTime, dirty
}

func getVersion() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

func getCommit() string {
	commit := Commit
	if commit == "" {
		commit, _, _ = vcs()
	}
	if len(commit) > shortHashLength {
		return commit[:shortHashLength]
	}
	return commit
}

// getBuildTimeDisplay says whether the time shown is the commit time or the
// build time. A dirty tree is stamped with the build time.
func getBuildTimeDisplay() string {
	if BuildTime != "" {
		t, err := time.Parse(time.RFC3339, BuildTime)
		if err != nil {
			return "unknown"
		}
		if strings.HasSuffix(Version, "dirty") {
			return t.Format(time.RFC3339) + " (build time)"
		}
		return t.Format(time.RFC3339) + " (commit time)"
	}

	_, revTime, dirty := vcs()
	if revTime.IsZero() {
		return "unknown"
	}
	out := revTime.Format(time.RFC3339) + " (commit time)"
	if dirty {
		out += ", modified"
	}
	return out
}
