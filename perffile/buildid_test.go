// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1.
func TestPerfizeScenario(t *testing.T) {
	assert.Equal(t, "f000000000000000000000000000000000000000", perfize("f"))
	full := "0123456789012345678901234567890123456789"
	assert.Equal(t, full, perfize(full))
}

// Scenario 2.
func TestTrimScenario(t *testing.T) {
	assert.Equal(t, "f0000000", trim("f000000000000000000000000000000000000000"))
	assert.Equal(t, "", trim("00000000"))
	assert.Equal(t, "0000000", trim("0000000"))
}

func TestPerfizeIdempotent(t *testing.T) {
	for _, s := range []string{"", "a", "f", "deadbeef", "0123456789012345678901234567890123456789"} {
		once := perfize(s)
		twice := perfize(once)
		assert.Equal(t, once, twice, "perfize(%q)", s)
	}
}

func TestTrimIdempotent(t *testing.T) {
	for _, s := range []string{"", "0", "00000000", "f000000000000000000000000000000000000000", "deadbeef00000000"} {
		once := trim(s)
		twice := trim(once)
		assert.Equal(t, once, twice, "trim(%q)", s)
	}
}

func TestBuildIDStoreInjectLookup(t *testing.T) {
	s := NewBuildIDStore()
	s.Inject("/usr/lib/foo.so", "deadbeef")
	id, ok := s.Lookup("/usr/lib/foo.so")
	require.True(t, ok)
	assert.Equal(t, perfize("deadbeef"), id)

	_, ok = s.Lookup("/usr/lib/bar.so")
	assert.False(t, ok)
}

func TestBuildIDStoreLocalizeByFilename(t *testing.T) {
	s := NewBuildIDStore()
	s.Inject("/data/app/foo.so", "cafef00d")
	s.LocalizeByFilename("/data/app/foo.so", "/usr/lib/foo.so")

	id, ok := s.Lookup("/usr/lib/foo.so")
	require.True(t, ok)
	assert.Equal(t, perfize("cafef00d"), id)

	_, ok = s.Lookup("/data/app/foo.so")
	assert.False(t, ok, "the old name should no longer resolve directly")

	alts := s.Alternates("/usr/lib/foo.so")
	assert.Contains(t, alts, "/data/app/foo.so")
}

func TestBuildIDStoreLocalizeByBuildID(t *testing.T) {
	s := NewBuildIDStore()
	s.Inject("/data/app/foo.so", "cafef00d")
	s.LocalizeByBuildID("cafef00d", "/usr/lib/foo.so")

	id, ok := s.Lookup("/usr/lib/foo.so")
	require.True(t, ok)
	assert.Equal(t, perfize("cafef00d"), id)

	_, ok = s.Lookup("/data/app/foo.so")
	assert.False(t, ok)
}

func TestBuildIDStoreAlternates(t *testing.T) {
	s := NewBuildIDStore()
	s.Inject("/usr/lib/foo.so", "cafef00d")
	s.Inject("/data/app/foo.so", "cafef00d")

	alts := s.Alternates("/usr/lib/foo.so")
	assert.Contains(t, alts, "/data/app/foo.so")
	assert.NotContains(t, alts, "/usr/lib/foo.so")
}

func TestBuildIDStoreBuildIDInfos(t *testing.T) {
	s := NewBuildIDStore()
	s.Observe("/usr/lib/foo.so", CPUModeUser)
	s.Inject("/usr/lib/foo.so", "cafef00d")
	s.Inject("[kernel.kallsyms]", "deadbeef")

	infos := s.BuildIDInfos()
	require.Len(t, infos, 2)

	assert.Equal(t, "/usr/lib/foo.so", infos[0].Filename)
	assert.Equal(t, CPUModeUser, infos[0].CPUMode)
	assert.Equal(t, -1, infos[0].PID)
	assert.Equal(t, "cafef00d", infos[0].BuildID.String(), "BuildIDInfos reports the trimmed, not zero-padded, hex ID")

	assert.Equal(t, "[kernel.kallsyms]", infos[1].Filename)
	assert.Equal(t, CPUModeKernel, infos[1].CPUMode, "a filename never Observed defaults to MISC_KERNEL")
}

func TestBuildIDStoreBuildIDInfosSkipsLocalizedAway(t *testing.T) {
	s := NewBuildIDStore()
	s.Inject("/data/app/foo.so", "cafef00d")
	s.LocalizeByFilename("/data/app/foo.so", "/usr/lib/foo.so")

	infos := s.BuildIDInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, "/usr/lib/foo.so", infos[0].Filename)
}

func TestBuildIDStoreLocalizeByFilenameCarriesCPUMode(t *testing.T) {
	s := NewBuildIDStore()
	s.Observe("/data/app/foo.so", CPUModeUser)
	s.Inject("/data/app/foo.so", "cafef00d")
	s.LocalizeByFilename("/data/app/foo.so", "/usr/lib/foo.so")

	infos := s.BuildIDInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, CPUModeUser, infos[0].CPUMode)
}
