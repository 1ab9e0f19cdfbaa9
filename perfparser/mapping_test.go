// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 3: a sample falls within the second of two adjacent
// mappings; remapping renumbers both into a dense space starting at 0.
func TestResolveAndRemapScenario(t *testing.T) {
	tbl := NewMappingTable()
	tbl.Insert(1001, &Mapping{Addr: 0x1c1000, Len: 0x1000, FileOffset: 0, Filename: "/usr/lib/foo.so"})
	tbl.Insert(1001, &Mapping{Addr: 0x1c3000, Len: 0x2000, FileOffset: 0x2000, Filename: "/usr/lib/bar.so"})

	m, off, ok := tbl.Resolve(1001, 0x1c3fff)
	require.True(t, ok)
	assert.Equal(t, "/usr/lib/bar.so", m.Filename)
	assert.Equal(t, uint64(0x2fff), off)

	translate := tbl.Remap(1 << 62)
	newAddr, ok := translate(1001, 0x1c3fff)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1fff), newAddr)

	m2, ok := tbl.Lookup(1001, 0x1c3000)
	require.True(t, ok)
	assert.Equal(t, uint64(0x2000), m2.FileOffset, "remap must not disturb FileOffset")
	assert.Equal(t, uint64(0x2000), m2.Len)
}

// Scenario 4: kernel mappings renumber from kernelBase and their
// FileOffset is zeroed post-remap.
func TestKernelMappingRemapScenario(t *testing.T) {
	tbl := NewMappingTable()
	tbl.InsertKernel(&Mapping{Addr: 0, Len: ^uint64(0), FileOffset: 0, Filename: "[kernel.kallsyms]_text"})

	translate := tbl.Remap(1 << 62)
	addr, ok := translate(-1, 0xffffffff8100cafe)
	require.True(t, ok)
	var base, offset uint64 = 1 << 62, 0xffffffff8100cafe
	assert.Equal(t, base+offset, addr)

	m, ok := tbl.Lookup(-1, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(0), m.FileOffset)
}

// Scenario 5: an anonymous mapping sandwiched between two mappings of
// the same file is folded into a continuation of that file, then
// combined into a single mapping.
func TestDeduceHugePagesScenario(t *testing.T) {
	tbl := NewMappingTable()
	tbl.Insert(2002, &Mapping{Addr: 0x40018000, Len: 0x1e8000, FileOffset: 0, Filename: "/opt/chrome/chrome"})
	tbl.Insert(2002, &Mapping{Addr: 0x40200000, Len: 0x1c00000, FileOffset: 0, Filename: "//anon"})
	tbl.Insert(2002, &Mapping{Addr: 0x41e00000, Len: 0x4000000, FileOffset: 0x1de8000, Filename: "/opt/chrome/chrome"})

	tbl.DeduceHugePages(2002)

	maps := tbl.mapsFor(2002)
	require.Len(t, maps, 1)
	assert.Equal(t, uint64(0x40018000), maps[0].Addr)
	assert.Equal(t, uint64(0x5de8000), maps[0].Len)
	assert.Equal(t, uint64(0), maps[0].FileOffset)
	assert.Equal(t, "/opt/chrome/chrome", maps[0].Filename)

	_, off, ok := tbl.Resolve(2002, 0x40020400)
	require.True(t, ok)
	assert.Equal(t, uint64(0x8400), off)
}

// Mapping disjointness: a new mapping that overlaps an old one always
// wins, and the resulting set of intervals never overlaps.
func TestInsertDisjointness(t *testing.T) {
	tbl := NewMappingTable()
	tbl.Insert(3003, &Mapping{Addr: 0x1000, Len: 0x3000, Filename: "a"})
	tbl.Insert(3003, &Mapping{Addr: 0x2000, Len: 0x1000, Filename: "b"})

	maps := tbl.mapsFor(3003)
	for i := 1; i < len(maps); i++ {
		assert.LessOrEqual(t, maps[i-1].end(), maps[i].Addr, "mappings must not overlap")
	}

	m, ok := tbl.Lookup(3003, 0x2500)
	require.True(t, ok)
	assert.Equal(t, "b", m.Filename)

	m, ok = tbl.Lookup(3003, 0x1500)
	require.True(t, ok)
	assert.Equal(t, "a", m.Filename)
}

func TestForkExit(t *testing.T) {
	tbl := NewMappingTable()
	tbl.Insert(100, &Mapping{Addr: 0x1000, Len: 0x1000, Filename: "a"})
	tbl.Fork(100, 200)

	m, ok := tbl.Lookup(200, 0x1500)
	require.True(t, ok)
	assert.Equal(t, "a", m.Filename)

	tbl.Exit(100)
	_, ok = tbl.Lookup(100, 0x1500)
	assert.False(t, ok)

	// the child's copy survives the parent's exit.
	_, ok = tbl.Lookup(200, 0x1500)
	assert.True(t, ok)
}

// Remap idempotence: remapping twice without recombining mappings
// yields identical addresses.
func TestRemapIdempotent(t *testing.T) {
	tbl := NewMappingTable()
	tbl.Insert(1, &Mapping{Addr: 0x5000, Len: 0x1000, Filename: "a"})
	tbl.Insert(1, &Mapping{Addr: 0x8000, Len: 0x2000, Filename: "b"})

	t1 := tbl.Remap(1 << 62)
	a1, _ := t1(1, 0x5500)
	b1, _ := t1(1, 0x8500)

	t2 := tbl.Remap(1 << 62)
	a2, _ := t2(1, 0x5500)
	b2, _ := t2(1, 0x8500)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}
