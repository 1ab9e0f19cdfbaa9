// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAttr() *EventAttr {
	return &EventAttr{
		Event:        EventHardware(EventHardwareCPUCycles),
		SampleFormat: SampleFormatIP | SampleFormatTID | SampleFormatTime,
	}
}

// A written file, read back, must reproduce the same records
// (spec.md 8's round-trip property).
func TestWriterReaderRoundTrip(t *testing.T) {
	attr := testAttr()
	w := NewWriter([]*EventAttr{attr})
	w.Meta().Hostname = "testhost"
	w.Meta().CmdLine = []string{"perf", "record"}

	mmap := &RecordMmap{
		Addr:       0x1c1000,
		Len:        0x1000,
		FileOffset: 0,
		Filename:   "/usr/lib/foo.so",
	}
	mmap.PID, mmap.TID = 1001, 1001

	comm := &RecordComm{Comm: "myproc"}
	comm.PID, comm.TID = 1001, 1001

	sample := &RecordSample{IP: 0x1c1100}
	sample.Format = attr.SampleFormat
	sample.PID, sample.TID = 1001, 1001
	sample.Time = 42

	require.NoError(t, w.WriteRecord(mmap))
	require.NoError(t, w.WriteRecord(comm))
	require.NoError(t, w.WriteRecord(sample))

	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf))

	f, err := New(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	hostname, err := f.Hostname()
	require.NoError(t, err)
	assert.Equal(t, "testhost", hostname)

	cmdline, err := f.CmdLine()
	require.NoError(t, err)
	assert.Equal(t, []string{"perf", "record"}, cmdline)

	rs := f.Records()

	require.True(t, rs.Next())
	gotMmap, ok := rs.Record.(*RecordMmap)
	require.True(t, ok, "expected *RecordMmap, got %T", rs.Record)
	assert.Equal(t, mmap.Addr, gotMmap.Addr)
	assert.Equal(t, mmap.Len, gotMmap.Len)
	assert.Equal(t, mmap.Filename, gotMmap.Filename)
	assert.Equal(t, mmap.PID, gotMmap.PID)

	require.True(t, rs.Next())
	gotComm, ok := rs.Record.(*RecordComm)
	require.True(t, ok, "expected *RecordComm, got %T", rs.Record)
	assert.Equal(t, comm.Comm, gotComm.Comm)

	require.True(t, rs.Next())
	gotSample, ok := rs.Record.(*RecordSample)
	require.True(t, ok, "expected *RecordSample, got %T", rs.Record)
	assert.Equal(t, sample.IP, gotSample.IP)
	assert.Equal(t, sample.PID, gotSample.PID)
	assert.Equal(t, sample.Time, gotSample.Time)

	assert.False(t, rs.Next())
	assert.NoError(t, rs.Err())
}

// A build-id-carrying MMAP2 record must round-trip its own fields
// (Prot/Flags/Filename) without desyncing the record that follows it.
// Build IDs the kernel actually emits are 20-byte SHA-1 digests, the
// full width of the union's build_id array, not the 16-byte case a
// narrower test would exercise.
func TestWriterReaderMmap2BuildIDRoundTrip(t *testing.T) {
	attr := testAttr()
	w := NewWriter([]*EventAttr{attr})

	buildID := make([]byte, 20)
	for i := range buildID {
		buildID[i] = byte(0xa0 + i)
	}
	mmap := &RecordMmap{
		Addr:       0x1c1000,
		Len:        0x1000,
		FileOffset: 0,
		BuildID:    buildID,
		Prot:       5,
		Flags:      2,
		Filename:   "/usr/lib/foo.so",
	}
	mmap.PID, mmap.TID = 1001, 1001

	comm := &RecordComm{Comm: "myproc"}
	comm.PID, comm.TID = 1001, 1001

	require.NoError(t, w.WriteRecord(mmap))
	require.NoError(t, w.WriteRecord(comm))

	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf))

	f, err := New(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rs := f.Records()

	require.True(t, rs.Next())
	gotMmap, ok := rs.Record.(*RecordMmap)
	require.True(t, ok, "expected *RecordMmap, got %T", rs.Record)
	assert.Equal(t, buildID, gotMmap.BuildID)
	assert.Equal(t, mmap.Prot, gotMmap.Prot)
	assert.Equal(t, mmap.Flags, gotMmap.Flags)
	assert.Equal(t, mmap.Filename, gotMmap.Filename)

	require.True(t, rs.Next(), "the following record must not be desynced")
	gotComm, ok := rs.Record.(*RecordComm)
	require.True(t, ok, "expected *RecordComm, got %T", rs.Record)
	assert.Equal(t, comm.Comm, gotComm.Comm)

	assert.False(t, rs.Next())
	assert.NoError(t, rs.Err())
}

func TestWriterReaderEventAttrRoundTrip(t *testing.T) {
	attr := testAttr()
	attr.SamplePeriod = 1000
	attr.Precise = 2
	attr.SampleMaxStack = 64

	w := NewWriter([]*EventAttr{attr})
	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf))

	f, err := New(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	got := f.EventAttrs()
	require.Len(t, got, 1)
	assert.Equal(t, attr.SamplePeriod, got[0].SamplePeriod)
	assert.Equal(t, attr.Precise, got[0].Precise)
	assert.Equal(t, attr.SampleMaxStack, got[0].SampleMaxStack)
	assert.Equal(t, attr.Event, got[0].Event)
}
