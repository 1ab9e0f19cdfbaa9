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

func TestSampleInfoCodecConsistent(t *testing.T) {
	a := newSampleInfoCodec(SampleFormatTID | SampleFormatTime | SampleFormatID)
	b := newSampleInfoCodec(SampleFormatTID | SampleFormatTime | SampleFormatID)
	require.NoError(t, a.consistent(b))
}

// Two attributes whose SampleFormat both carry an ID but at different
// trailer offsets must be rejected: the ID can't be read without
// already knowing which attribute's layout applies.
func TestSampleInfoCodecInconsistent(t *testing.T) {
	a := newSampleInfoCodec(SampleFormatTID | SampleFormatID)
	b := newSampleInfoCodec(SampleFormatIP | SampleFormatTID | SampleFormatID)
	err := a.consistent(b)
	require.Error(t, err)
	var ip *InconsistentPositions
	assert.ErrorAs(t, err, &ip)
}

func TestSampleInfoCodecTrailerBytesRoundTrip(t *testing.T) {
	format := SampleFormatTID | SampleFormatTime | SampleFormatID | SampleFormatStreamID | SampleFormatCPU
	c := newSampleInfoCodec(format)

	want := &RecordCommon{
		Format:   format,
		PID:      1001,
		TID:      1002,
		Time:     123456789,
		ID:       7,
		StreamID: 42,
		CPU:      3,
		Res:      0,
	}

	be := &bufEncoder{order: binary.LittleEndian}
	c.encodeTrailer(be, want)
	assert.Len(t, be.buf, c.trailerBytes())

	got := &RecordCommon{}
	c.decodeTrailer(be.buf, be.order, got)
	got.ID = want.ID // decodeTrailer deliberately leaves ID to the caller

	assert.Equal(t, want.PID, got.PID)
	assert.Equal(t, want.TID, got.TID)
	assert.Equal(t, want.Time, got.Time)
	assert.Equal(t, want.StreamID, got.StreamID)
	assert.Equal(t, want.CPU, got.CPU)
}
