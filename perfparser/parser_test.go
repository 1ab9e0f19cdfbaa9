// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfparser

import (
	"bytes"
	"context"
	"testing"

	"github.com/perfdata-go/perfdata/perffile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildProfile(t *testing.T) []byte {
	t.Helper()

	attr := &perffile.EventAttr{
		Event:        perffile.EventHardware(perffile.EventHardwareCPUCycles),
		SampleFormat: perffile.SampleFormatIP | perffile.SampleFormatTID,
	}
	w := perffile.NewWriter([]*perffile.EventAttr{attr})

	mmapFoo := &perffile.RecordMmap{Addr: 0x1c1000, Len: 0x1000, FileOffset: 0, Filename: "/usr/lib/foo.so"}
	mmapFoo.PID, mmapFoo.TID = 1001, 1001
	mmapBar := &perffile.RecordMmap{Addr: 0x1c3000, Len: 0x2000, FileOffset: 0x2000, Filename: "/usr/lib/bar.so"}
	mmapBar.PID, mmapBar.TID = 1001, 1001

	sample := &perffile.RecordSample{IP: 0x1c3fff}
	sample.Format = attr.SampleFormat
	sample.PID, sample.TID = 1001, 1001

	require.NoError(t, w.WriteRecord(mmapFoo))
	require.NoError(t, w.WriteRecord(mmapBar))
	require.NoError(t, w.WriteRecord(sample))

	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf))
	return buf.Bytes()
}

// The parser resolves a sample's IP against mappings built from the
// preceding MMAP records, end to end through the wire codec
// (spec.md 8 scenario 3).
func TestParserResolvesSample(t *testing.T) {
	data := buildProfile(t)
	f, err := perffile.New(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	p := NewParser(Config{}, nil)
	recs, err := p.Parse(context.Background(), f.Records())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	sample, ok := recs[2].(*perffile.RecordSample)
	require.True(t, ok, "expected *perffile.RecordSample, got %T", recs[2])
	require.True(t, sample.DSOOK)
	assert.Equal(t, "/usr/lib/bar.so", sample.DSO.DSOName)
	assert.Equal(t, uint64(0x2fff), sample.DSO.Offset)

	assert.Equal(t, 1, p.Stats.Samples)
	assert.Equal(t, 1, p.Stats.SamplesMapped)
}

// InsufficientlyMapped fires when too few samples resolve.
func TestParserInsufficientlyMapped(t *testing.T) {
	attr := &perffile.EventAttr{
		Event:        perffile.EventHardware(perffile.EventHardwareCPUCycles),
		SampleFormat: perffile.SampleFormatIP | perffile.SampleFormatTID,
	}
	w := perffile.NewWriter([]*perffile.EventAttr{attr})

	unmapped := &perffile.RecordSample{IP: 0xdeadbeef}
	unmapped.Format = attr.SampleFormat
	unmapped.PID, unmapped.TID = 42, 42
	require.NoError(t, w.WriteRecord(unmapped))

	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf))

	f, err := perffile.New(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	p := NewParser(Config{SampleMappingPercentageThreshold: 0.5}, nil)
	_, err = p.Parse(context.Background(), f.Records())
	require.Error(t, err)
	var im *InsufficientlyMapped
	assert.ErrorAs(t, err, &im)
}

// A context cancelled before parsing starts yields Cancelled.
func TestParserCancelled(t *testing.T) {
	data := buildProfile(t)
	f, err := perffile.New(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParser(Config{}, nil)
	_, err = p.Parse(ctx, f.Records())
	require.Error(t, err)
	var c *Cancelled
	assert.ErrorAs(t, err, &c)
}
