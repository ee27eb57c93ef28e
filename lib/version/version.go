// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/arcana-engine/treasury/lib/pluginabi"
)

// These variables are set via -ldflags at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	commit, dirty := Commit(), ""
	if GitDirty == "true" || (GitCommit == "unknown" && buildSetting("vcs.modified") == "true") {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, dirty, BuildTime)
}

// Full returns Info plus the plugin contract, Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Plugin contract: %s\n  Go: %s\n  Platform: %s/%s",
		Info(), pluginabi.ContractVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Commit returns the git commit SHA.
func Commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	if revision := buildSetting("vcs.revision"); len(revision) >= 7 {
		return revision[:7]
	}
	return GitCommit
}

func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
