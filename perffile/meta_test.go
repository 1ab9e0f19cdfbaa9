// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EVENT_DESC augments the attribute table with a human-readable name
// per event, keyed by the same attrIDs the attribute table uses
// (spec.md 4.4).
func TestParseEventDesc(t *testing.T) {
	attr := testAttr()

	be := &bufEncoder{order: binary.LittleEndian}
	be.u32(1) // nr_events
	be.u32(uint32(eventAttrVNSize))
	encodeEventAttr(be, attr)
	be.u32(2) // nr_ids
	be.lenString("cycles")
	be.u64(7)
	be.u64(9)

	m := &FileMeta{}
	require.NoError(t, m.parseEventDesc(bufDecoder{be.buf, binary.LittleEndian}))

	require.Len(t, m.EventDescs, 1)
	desc := m.EventDescs[0]
	assert.Equal(t, "cycles", desc.Name)
	assert.Equal(t, attr.Event, desc.Attr.Event)
	assert.Equal(t, []attrID{7, 9}, desc.IDs)
}

// An older on-disk perf_event_attr shorter than eventAttrVNSize must be
// upgraded by zero-padding, the same rule readAttrs applies to the
// normal-mode attribute table.
func TestParseEventDescShortAttr(t *testing.T) {
	attr := testAttr()

	full := &bufEncoder{order: binary.LittleEndian}
	encodeEventAttr(full, attr)
	shortAttr := full.buf[:64]

	be := &bufEncoder{order: binary.LittleEndian}
	be.u32(1)
	be.u32(uint32(len(shortAttr)))
	be.bytes(shortAttr)
	be.u32(0) // nr_ids
	be.lenString("instructions")

	m := &FileMeta{}
	require.NoError(t, m.parseEventDesc(bufDecoder{be.buf, binary.LittleEndian}))

	require.Len(t, m.EventDescs, 1)
	assert.Equal(t, "instructions", m.EventDescs[0].Name)
	assert.Equal(t, attr.Event, m.EventDescs[0].Attr.Event)
}

// A newer perf appends per-CPU core/socket IDs after the CPU_TOPOLOGY
// section's sibling string lists; CPUsOnline (from the already-parsed
// NRCPUS section) gives the count (spec.md 4.4).
func TestParseCPUTopologyExtended(t *testing.T) {
	be := &bufEncoder{order: binary.LittleEndian}
	be.stringList(nil) // cores
	be.stringList(nil) // threads
	be.u32(0)          // cpu 0: core_id
	be.u32(1)          // cpu 0: socket_id
	be.u32(2)          // cpu 1: core_id
	be.u32(1)          // cpu 1: socket_id

	m := &FileMeta{CPUsOnline: 2}
	require.NoError(t, m.parseCPUTopology(bufDecoder{be.buf, binary.LittleEndian}))

	require.Len(t, m.AvailableCPUs, 2)
	assert.Equal(t, CPUTopologyEntry{CoreID: 0, SocketID: 1}, m.AvailableCPUs[0])
	assert.Equal(t, CPUTopologyEntry{CoreID: 2, SocketID: 1}, m.AvailableCPUs[1])
}

// An older perf's CPU_TOPOLOGY section ends after the sibling lists;
// AvailableCPUs must stay nil rather than fabricating entries.
func TestParseCPUTopologyWithoutExtended(t *testing.T) {
	be := &bufEncoder{order: binary.LittleEndian}
	be.stringList([]string{"0-3"})
	be.stringList([]string{"0-1", "2-3"})

	m := &FileMeta{CPUsOnline: 4}
	require.NoError(t, m.parseCPUTopology(bufDecoder{be.buf, binary.LittleEndian}))

	assert.Nil(t, m.AvailableCPUs)
	require.Len(t, m.CoreGroups, 1)
	require.Len(t, m.ThreadGroups, 2)
}

// File.Meta parses feature bits in ascending order so that
// parseCPUTopology's extended layout can rely on m.CPUsOnline already
// being populated from the lower-numbered NRCPUS feature bit.
func TestFeatureBitOrderingNrCpusBeforeCPUTopology(t *testing.T) {
	assert.Less(t, int(featureNrCpus), int(featureCPUTopology))
}
