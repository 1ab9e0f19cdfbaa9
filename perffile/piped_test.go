// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePipeRecord appends one record (an 8-byte header plus body) to
// buf, mirroring Writer.WriteRecord's own header encoding.
func writePipeRecord(buf *bytes.Buffer, typ RecordType, misc recordMisc, body []byte) {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(typ))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(misc))
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(8+len(body)))
	buf.Write(hdr[:])
	buf.Write(body)
}

func encodeHeaderAttrBody(attr *EventAttr, ids []attrID) []byte {
	be := &bufEncoder{order: binary.LittleEndian}
	encodeEventAttr(be, attr)
	for _, id := range ids {
		be.u64(uint64(id))
	}
	return be.buf
}

// A piped-mode stream carries its attribute table inline as
// RecordHeaderAttr records (spec.md 4.4) instead of a seekable
// attribute table; NewPiped must register each one so that the SAMPLE
// records that follow can resolve their EventAttr.
func TestNewPipedRegistersHeaderAttr(t *testing.T) {
	attr := testAttr()

	sampleBody := &bufEncoder{order: binary.LittleEndian}
	sampleBody.u64(0x1c1100) // IP
	sampleBody.i32(1001)     // PID
	sampleBody.i32(1001)     // TID
	sampleBody.u64(42)       // Time

	var stream bytes.Buffer
	stream.WriteString(magicLE)
	stream.Write(make([]byte, 8)) // pipe size field, unchecked by NewPiped

	writePipeRecord(&stream, RecordTypeHeaderAttr, 0, encodeHeaderAttrBody(attr, nil))
	writePipeRecord(&stream, RecordTypeSample, 0, sampleBody.buf)

	f, err := NewPiped(bytes.NewReader(stream.Bytes()))
	require.NoError(t, err)

	rs := f.Records()

	require.True(t, rs.Next())
	_, ok := rs.Record.(*RecordHeaderAttr)
	require.True(t, ok, "expected *RecordHeaderAttr, got %T", rs.Record)
	assert.Len(t, f.EventAttrs(), 1)

	require.True(t, rs.Next())
	sample, ok := rs.Record.(*RecordSample)
	require.True(t, ok, "expected *RecordSample, got %T", rs.Record)
	require.NotNil(t, sample.EventAttr)
	assert.Equal(t, uint64(0x1c1100), sample.IP)
	assert.Equal(t, 1001, sample.PID)
	assert.Equal(t, uint64(42), sample.Time)

	assert.False(t, rs.Next())
	assert.NoError(t, rs.Err())
}

// Two RecordHeaderAttr announcements for the same attribute config must
// merge into a single EventAttr (spec.md 4.4's attribute dedup), not
// shadow one another in idToAttr.
func TestNewPipedDedupsRepeatedHeaderAttr(t *testing.T) {
	attr := testAttr()

	var stream bytes.Buffer
	stream.WriteString(magicLE)
	stream.Write(make([]byte, 8))
	writePipeRecord(&stream, RecordTypeHeaderAttr, 0, encodeHeaderAttrBody(attr, []attrID{7}))
	writePipeRecord(&stream, RecordTypeHeaderAttr, 0, encodeHeaderAttrBody(attr, []attrID{9}))

	f, err := NewPiped(bytes.NewReader(stream.Bytes()))
	require.NoError(t, err)

	rs := f.Records()
	require.True(t, rs.Next())
	require.True(t, rs.Next())
	assert.False(t, rs.Next())
	require.NoError(t, rs.Err())

	assert.Len(t, f.EventAttrs(), 1, "repeated announcements of the same config must not duplicate the EventAttr")
	assert.Equal(t, attr.Event, f.EventAttrs()[0].Event)
	assert.ElementsMatch(t, []attrID{7, 9}, f.EventAttrs()[0].ids)
}
