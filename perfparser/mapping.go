// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perfparser drives a perffile.Records stream to resolve
// sample addresses to (DSO, offset) pairs, augment build IDs from the
// local filesystem, and produce a chronologically ordered, remapped
// view of a profile (spec.md 5, 6, 9).
package perfparser

import (
	"sort"

	"github.com/perfdata-go/perfdata/perffile"
)

// Mapping is one memory mapping known for a process: the interval
// [Addr, Addr+Len) maps to byte FileOffset within DSO (identified by
// filename, possibly carrying a build ID).
type Mapping struct {
	Addr, Len  uint64
	FileOffset uint64
	Filename   string
	BuildID    []byte
	Exec       bool

	// Major, Minor, and Ino identify the backing file's device and
	// inode, valid when BuildID is empty (spec.md 4.6's inode-matching
	// build-ID probe).
	Major, Minor uint32
	Ino          uint64
}

func (m *Mapping) end() uint64 { return m.Addr + m.Len }

// MappingTable tracks every process's memory mappings as RecordMmap
// events are applied to it, and resolves addresses against them
// (spec.md 5). The zero value is not usable; use NewMappingTable.
type MappingTable struct {
	kernel []*Mapping
	byPID  map[int][]*Mapping
}

// NewMappingTable creates an empty MappingTable.
func NewMappingTable() *MappingTable {
	return &MappingTable{byPID: map[int][]*Mapping{}}
}

// Insert adds a new mapping for pid, splitting or truncating any
// mapping it overlaps. The new mapping always wins where it overlaps
// an existing one, matching the kernel's own mmap semantics: a new
// mapping can partially or fully replace an old one at the same
// address range.
func (t *MappingTable) Insert(pid int, m *Mapping) {
	list := t.mapsFor(pid)
	out := list[:0]
	for _, old := range list {
		switch {
		case m.Addr <= old.Addr && old.end() <= m.end():
			// old fully covered by new: drop it.
		case old.Addr < m.Addr && m.end() < old.end():
			// new splits old in two.
			left := *old
			left.Len = m.Addr - old.Addr
			right := *old
			right.Addr = m.end()
			right.Len = old.end() - m.end()
			right.FileOffset += m.end() - old.Addr
			out = append(out, &left, &right)
		case old.Addr < m.Addr && m.Addr < old.end():
			// new truncates the tail of old.
			old.Len = m.Addr - old.Addr
			out = append(out, old)
		case old.Addr < m.end() && m.end() < old.end():
			// new truncates the head of old.
			end := old.end()
			old.FileOffset += m.end() - old.Addr
			old.Addr = m.end()
			old.Len = end - old.Addr
			out = append(out, old)
		default:
			out = append(out, old)
		}
	}
	out = append(out, m)
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	t.setMapsFor(pid, out)
}

// InsertKernel adds a mapping visible to every process (the running
// kernel and kernel modules, conventionally recorded under pid -1).
func (t *MappingTable) InsertKernel(m *Mapping) {
	t.kernel = append(t.kernel, m)
	sort.Slice(t.kernel, func(i, j int) bool { return t.kernel[i].Addr < t.kernel[j].Addr })
}

func (t *MappingTable) mapsFor(pid int) []*Mapping { return t.byPID[pid] }
func (t *MappingTable) setMapsFor(pid int, m []*Mapping) {
	if len(m) == 0 {
		delete(t.byPID, pid)
		return
	}
	t.byPID[pid] = m
}

// Fork copies parent's mappings to child, as the kernel does on
// fork()/clone() without CLONE_VM.
func (t *MappingTable) Fork(parent, child int) {
	src := t.mapsFor(parent)
	dst := make([]*Mapping, len(src))
	for i, m := range src {
		cp := *m
		dst[i] = &cp
	}
	t.setMapsFor(child, dst)
}

// Exit discards pid's mappings.
func (t *MappingTable) Exit(pid int) { delete(t.byPID, pid) }

// Lookup finds the mapping containing addr in pid's address space,
// falling back to the kernel's mappings if pid has none that match
// (spec.md 5: kernel addresses can appear in any process's samples).
func (t *MappingTable) Lookup(pid int, addr uint64) (*Mapping, bool) {
	if m := lookupIn(t.mapsFor(pid), addr); m != nil {
		return m, true
	}
	if m := lookupIn(t.kernel, addr); m != nil {
		return m, true
	}
	return nil, false
}

// Resolve is Lookup followed by the file-offset computation spec.md 5
// defines for a hit: mapping.FileOffset + (addr - mapping.Addr).
func (t *MappingTable) Resolve(pid int, addr uint64) (m *Mapping, offset uint64, ok bool) {
	m, ok = t.Lookup(pid, addr)
	if !ok {
		return nil, 0, false
	}
	return m, m.FileOffset + (addr - m.Addr), true
}

func lookupIn(maps []*Mapping, addr uint64) *Mapping {
	i := sort.Search(len(maps), func(i int) bool { return addr < maps[i].end() })
	if i < len(maps) && maps[i].Addr <= addr {
		return maps[i]
	}
	return nil
}

// CombineAdjacent merges adjacent mappings of the same pid that share
// a filename and are contiguous both in address space and in file
// offset, which perf sometimes splits into multiple MMAP events for a
// single shared object (spec.md 5).
func (t *MappingTable) CombineAdjacent(pid int) {
	maps := t.mapsFor(pid)
	if len(maps) < 2 {
		return
	}
	out := maps[:1]
	for _, m := range maps[1:] {
		last := out[len(out)-1]
		if last.Filename == m.Filename && last.end() == m.Addr &&
			last.FileOffset+last.Len == m.FileOffset {
			last.Len += m.Len
			continue
		}
		out = append(out, m)
	}
	t.setMapsFor(pid, out)
}

// DeduceHugePages rewrites an anonymous "//anon" mapping sandwiched
// between (or immediately preceding) mappings of a named executable
// into a continuation of that executable, undoing the kernel's habit
// of reporting a transparent-huge-page-backed remainder of a shared
// object as a separate anonymous mapping (spec.md 5). It then runs
// CombineAdjacent on pid, fusing the rewritten mapping with its
// neighbors.
func (t *MappingTable) DeduceHugePages(pid int) {
	maps := t.mapsFor(pid)
	isNamed := func(m *Mapping) bool { return m.Filename != "" && m.Filename != "//anon" }

	for i, m := range maps {
		if m.Filename != "//anon" {
			continue
		}
		var prev, next *Mapping
		if i > 0 {
			prev = maps[i-1]
		}
		if i+1 < len(maps) {
			next = maps[i+1]
		}

		switch {
		case prev != nil && next != nil && isNamed(prev) && prev.Filename == next.Filename &&
			prev.end() == m.Addr && m.end() == next.Addr &&
			prev.FileOffset+prev.Len+m.Len == next.FileOffset:
			// Sandwiched between two mappings of the same file.
			m.Filename = prev.Filename
			m.BuildID = prev.BuildID
			m.FileOffset = prev.FileOffset + prev.Len

		case next != nil && isNamed(next) && m.end() == next.Addr:
			// Anonymous mapping appears first; infer from next.
			m.Filename = next.Filename
			m.BuildID = next.BuildID
			m.FileOffset = next.FileOffset - m.Len
		}
	}
	t.CombineAdjacent(pid)
}

// Remap assigns every mapping a location in a dense, non-overlapping
// virtual address space: each pid's mappings are laid out independently
// starting at 0, in address order, while the kernel's mappings start at
// kernelBase (spec.md 5's "quasi-kernel base"). Each mapping's new
// address is the running cumulative length of the mappings before it in
// the same address space. The mappings' Addr and Len fields are left as
// they are, so Remap can be run again; the kernel mapping's FileOffset is zeroed,
// matching perf's own convention that a post-remap kernel file_offset
// can no longer be trusted to correspond to the running vmlinux image.
//
// The caller should run DeduceHugePages and CombineAdjacent on every
// pid before Remap, per spec.md 5's pass ordering. Remap returns a
// function translating an address originally in pid's space into its
// remapped location; pid may be -1 to address the kernel's own space.
func (t *MappingTable) Remap(kernelBase uint64) func(pid int, addr uint64) (uint64, bool) {
	type key struct {
		pid  int
		addr uint64
	}
	newAddr := map[key]uint64{}

	remapOne := func(pid int, maps []*Mapping, base uint64) {
		next := base
		for _, m := range maps {
			newAddr[key{pid, m.Addr}] = next
			next += m.Len
		}
	}
	remapOne(-1, t.kernel, kernelBase)
	for _, m := range t.kernel {
		m.FileOffset = 0
	}
	pids := make([]int, 0, len(t.byPID))
	for pid := range t.byPID {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		remapOne(pid, t.byPID[pid], 0)
	}

	return func(pid int, addr uint64) (uint64, bool) {
		if pid != -1 {
			if m := lookupIn(t.mapsFor(pid), addr); m != nil {
				return newAddr[key{pid, m.Addr}] + (addr - m.Addr), true
			}
		}
		if m := lookupIn(t.kernel, addr); m != nil {
			return newAddr[key{-1, m.Addr}] + (addr - m.Addr), true
		}
		return 0, false
	}
}

// Apply updates t from a single record that changes process state
// (RecordMmap, RecordFork, RecordExit); other record types are
// ignored.
func (t *MappingTable) Apply(r perffile.Record) {
	switch r := r.(type) {
	case *perffile.RecordFork:
		if r.PID == r.PPID {
			return // thread creation, not process fork
		}
		t.Fork(r.PPID, r.PID)
	case *perffile.RecordExit:
		if r.PID == r.TID {
			t.Exit(r.PID)
		}
	case *perffile.RecordMmap:
		m := &Mapping{
			Addr:       r.Addr,
			Len:        r.Len,
			FileOffset: r.FileOffset,
			Filename:   r.Filename,
			BuildID:    r.BuildID,
			Exec:       !r.Data,
			Major:      r.Major,
			Minor:      r.Minor,
			Ino:        r.Ino,
		}
		if r.PID == -1 {
			t.InsertKernel(m)
		} else {
			t.Insert(r.PID, m)
		}
	}
}
