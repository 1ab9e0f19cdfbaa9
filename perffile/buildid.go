// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"encoding/hex"
	"strings"
)

// perfizedBuildIDLen is the length perf pads every on-disk build ID
// hex string to: 40 hex characters, the width of a 20-byte SHA-1,
// regardless of the hash's native length.
const perfizedBuildIDLen = 40

// perfize pads a build ID hex string with trailing zeros up to
// perfizedBuildIDLen characters, matching how perf itself stores build
// IDs on disk regardless of the hash's native length.
func perfize(hexID string) string {
	if len(hexID) >= perfizedBuildIDLen {
		return hexID
	}
	return hexID + strings.Repeat("0", perfizedBuildIDLen-len(hexID))
}

// trim strips the zero padding perfize adds, in 8-hex-char (4-byte)
// groups: while the string's length is a multiple of 8, a trailing
// "00000000" group is dropped, one group at a time. A build ID whose
// real bytes end in a zero group loses that group too, so
// trim(perfize(s)) == s only for an s whose length is a multiple of 8
// and that does not end in "00000000". trim is idempotent.
func trim(hexID string) string {
	for len(hexID) > 0 && len(hexID)%8 == 0 {
		tail := hexID[len(hexID)-8:]
		if tail != "00000000" {
			break
		}
		hexID = hexID[:len(hexID)-8]
	}
	return hexID
}

// BuildIDStore maps executable/library filenames to their build IDs
// across a profile, and supports injecting, relocating, and
// deduplicating them (spec.md 6's build-ID handling).
type BuildIDStore struct {
	// byFilename maps a filename (as it appeared in the profile, not
	// necessarily perfized) to its build ID hex string.
	byFilename map[string]string

	// byID maps a perfized build ID to every filename the profile
	// observed with that ID, in first-seen order, so a caller
	// localizing by build ID can also localize every alias.
	byID map[string][]string

	// cpuMode records the CPUMode of the first MMAP/MMAP2 record seen
	// for each filename, defaulting to CPUModeKernel if the filename
	// is injected or localized without ever having been Observed
	// (spec.md 4.4: "the misc bit is taken from the first seen MMAP
	// for that filename, defaulting to MISC_KERNEL").
	cpuMode map[string]CPUMode

	// order records filenames in first-Inject order, so BuildIDInfos
	// produces a deterministic, reproducible listing.
	order []string
}

// NewBuildIDStore creates an empty BuildIDStore.
func NewBuildIDStore() *BuildIDStore {
	return &BuildIDStore{
		byFilename: map[string]string{},
		byID:       map[string][]string{},
		cpuMode:    map[string]CPUMode{},
	}
}

// NewBuildIDStoreFromMeta populates a BuildIDStore from a profile's
// FileMeta.BuildIDs (the normal-mode BUILD_ID feature section) only;
// build IDs carried by RecordHeaderBuildID or RecordMmap records are
// not added. Later entries for the same filename win.
func NewBuildIDStoreFromMeta(m *FileMeta) *BuildIDStore {
	s := NewBuildIDStore()
	for _, bid := range m.BuildIDs {
		s.Inject(bid.Filename, bid.BuildID.String())
	}
	return s
}

// Inject records that filename has the given build ID (a perfized or
// unperfized hex string; both are normalized to perfized form
// internally). A later call for the same filename overwrites an
// earlier one, matching perf inject's semantics of always trusting the
// most recently observed build ID.
func (s *BuildIDStore) Inject(filename, hexID string) {
	id := perfize(strings.ToLower(hexID))
	if _, ok := s.byFilename[filename]; !ok {
		s.order = append(s.order, filename)
	}
	s.byFilename[filename] = id
	s.addAlternate(id, filename)
}

// Observe records mode as filename's CPU mode if this is the first time
// filename has been observed. Callers processing a record stream call
// this from every MMAP/MMAP2 record, before any Inject for that
// filename, so the stored mode reflects the mapping's privilege level
// rather than whatever mode happened to be in effect when the build ID
// was injected.
func (s *BuildIDStore) Observe(filename string, mode CPUMode) {
	if _, ok := s.cpuMode[filename]; !ok {
		s.cpuMode[filename] = mode
	}
}

// BuildIDInfos returns the store's contents as a []BuildIDInfo, in
// first-seen filename order, suitable for assigning directly to
// Writer.Meta().BuildIDs so that Inject/LocalizeByFilename/
// LocalizeByBuildID calls actually persist into an output perf.data
// file on Flush (spec.md 4.4). PID is always -1: this store has no
// per-process build ID scoping, matching perf's own "VM kernel" sentinel
// for entries it can't attribute to a single process.
func (s *BuildIDStore) BuildIDInfos() []BuildIDInfo {
	out := make([]BuildIDInfo, 0, len(s.order))
	for _, filename := range s.order {
		id, ok := s.byFilename[filename]
		if !ok {
			// Localized away from this filename by LocalizeByFilename
			// or LocalizeByBuildID.
			continue
		}
		mode, ok := s.cpuMode[filename]
		if !ok {
			mode = CPUModeKernel
		}
		raw, err := hex.DecodeString(trim(id))
		if err != nil {
			raw = nil
		}
		out = append(out, BuildIDInfo{
			CPUMode:  mode,
			PID:      -1,
			BuildID:  BuildID(raw),
			Filename: filename,
		})
	}
	return out
}

func (s *BuildIDStore) addAlternate(id, filename string) {
	for _, alt := range s.byID[id] {
		if alt == filename {
			return
		}
	}
	s.byID[id] = append(s.byID[id], filename)
}

// appendOrder records filename in first-seen order for BuildIDInfos, if
// it isn't there already.
func (s *BuildIDStore) appendOrder(filename string) {
	for _, fn := range s.order {
		if fn == filename {
			return
		}
	}
	s.order = append(s.order, filename)
}

// Lookup returns the perfized build ID hex string for filename, and
// whether one is known.
func (s *BuildIDStore) Lookup(filename string) (string, bool) {
	id, ok := s.byFilename[filename]
	return id, ok
}

// LocalizeByFilename renames every stored entry whose filename equals
// from to to, preserving its build ID. This is used when remapping a
// profile captured in a container or chroot onto a local filesystem
// layout (spec.md 6).
func (s *BuildIDStore) LocalizeByFilename(from, to string) {
	id, ok := s.byFilename[from]
	if !ok {
		return
	}
	delete(s.byFilename, from)
	s.byFilename[to] = id
	s.addAlternate(id, to)
	s.appendOrder(to)
	if mode, ok := s.cpuMode[from]; ok {
		delete(s.cpuMode, from)
		if _, already := s.cpuMode[to]; !already {
			s.cpuMode[to] = mode
		}
	}
}

// LocalizeByBuildID renames every stored entry whose build ID equals
// hexID (perfized or not) to newFilename, including every alternate
// name recorded for that build ID. This is the build-ID-keyed
// counterpart to LocalizeByFilename, used when the profiled binary's
// original path no longer exists but a binary with a matching build ID
// is found elsewhere.
func (s *BuildIDStore) LocalizeByBuildID(hexID, newFilename string) {
	id := perfize(strings.ToLower(hexID))
	var mode CPUMode
	haveMode := false
	for _, fn := range s.byID[id] {
		if m, ok := s.cpuMode[fn]; ok && !haveMode {
			mode, haveMode = m, true
		}
		delete(s.byFilename, fn)
		delete(s.cpuMode, fn)
	}
	s.byFilename[newFilename] = id
	s.byID[id] = []string{newFilename}
	s.appendOrder(newFilename)
	if haveMode {
		if _, already := s.cpuMode[newFilename]; !already {
			s.cpuMode[newFilename] = mode
		}
	}
}

// Alternates returns every filename this store has seen associated
// with the same build ID as filename, not including filename itself.
func (s *BuildIDStore) Alternates(filename string) []string {
	id, ok := s.byFilename[filename]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.byID[id]))
	for _, fn := range s.byID[id] {
		if fn != filename {
			out = append(out, fn)
		}
	}
	return out
}

// DecodeHex is a convenience wrapper for turning an on-disk 20-byte
// (or shorter) build ID into the lowercase hex string used throughout
// this package's API.
func DecodeHex(raw []byte) string {
	return hex.EncodeToString(raw)
}
