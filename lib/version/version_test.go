// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"

	"github.com/arcana-engine/treasury/lib/pluginabi"
)

func TestInfoInjected(t *testing.T) {
	saved := [...]string{GitCommit, GitDirty, BuildTime, Version}
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = saved[0], saved[1], saved[2], saved[3]
	})

	GitCommit, GitDirty, BuildTime, Version = "abc1234", "true", "2026-10-01T00:00:00Z", "1.2.0"
	if got, want := Info(), "1.2.0 (abc1234-dirty, 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if Commit() != "abc1234" {
		t.Errorf("Commit() = %q", Commit())
	}
	if Short() != "1.2.0" {
		t.Errorf("Short() = %q", Short())
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.HasPrefix(full, Info()) {
		t.Errorf("Full() = %q, want Info() prefix", full)
	}
	if !strings.Contains(full, "Plugin contract: "+pluginabi.ContractVersion) {
		t.Errorf("Full() = %q, missing plugin contract", full)
	}
}
