// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import "encoding/binary"

// A sampleInfoCodec computes and decodes the "sample_id" trailer that
// kernel-generated records carry when their owning attribute has
// EventFlagSampleIDAll set (spec.md 4.2). It is built once per
// EventAttr and then reused for every record that attribute produces.
//
// The trailer's layout differs between SAMPLE records (fields laid out
// forward from a fixed start) and every other kernel record type
// (fields laid out backward from the record's end), so the codec
// tracks both positions.
type sampleInfoCodec struct {
	format SampleFormat

	// sampleIDBytePos is the byte offset of the ID/Identifier field
	// within a SAMPLE record's body, or -1 if this attribute's
	// format carries no ID at all.
	sampleIDBytePos int

	// otherIDBytePos is the byte offset of the ID/Identifier field
	// relative to the *end* of a non-SAMPLE kernel record (always
	// <= -8), or -1 if absent.
	otherIDBytePos int
}

func newSampleInfoCodec(format SampleFormat) sampleInfoCodec {
	c := sampleInfoCodec{format: format}

	switch {
	case format&SampleFormatIdentifier != 0:
		c.sampleIDBytePos = 0
		c.otherIDBytePos = -8

	case format&SampleFormatID != 0:
		off := 0
		if format&SampleFormatIP != 0 {
			off += 8
		}
		if format&SampleFormatTID != 0 {
			off += 8
		}
		if format&SampleFormatTime != 0 {
			off += 8
		}
		if format&SampleFormatAddr != 0 {
			off += 8
		}
		c.sampleIDBytePos = off

		off = 0
		if format&SampleFormatCPU != 0 {
			off -= 8
		}
		if format&SampleFormatStreamID != 0 {
			off -= 8
		}
		c.otherIDBytePos = off - 8

	default:
		c.sampleIDBytePos = -1
		c.otherIDBytePos = -1
	}

	return c
}

// consistent reports whether c and other were built from attributes
// that agree on where the ID field lives. Files that disagree are
// ambiguous to parse: a record's EventAttr can't be determined until
// after the ID is read, but the ID can't be read without knowing which
// attribute's layout applies.
func (c sampleInfoCodec) consistent(other sampleInfoCodec) error {
	if c.sampleIDBytePos != other.sampleIDBytePos || c.otherIDBytePos != other.otherIDBytePos {
		return &InconsistentPositions{A: c.sampleIDBytePos, B: other.sampleIDBytePos}
	}
	return nil
}

// trailerBytes returns the length of the sample_id trailer appended to
// non-SAMPLE kernel records with this format, not counting the 8-byte
// record header.
func (c sampleInfoCodec) trailerBytes() int {
	s := c.format & (SampleFormatTID | SampleFormatTime | SampleFormatID |
		SampleFormatStreamID | SampleFormatCPU | SampleFormatIdentifier)
	return 8 * weight(uint64(s))
}

// decodeTrailer reads the sample_id trailer from the tail of body (the
// full non-SAMPLE record body, header already stripped) into o.
func (c sampleInfoCodec) decodeTrailer(body []byte, order binary.ByteOrder, o *RecordCommon) {
	n := c.trailerBytes()
	if n > len(body) {
		n = len(body)
	}
	bd := &bufDecoder{body[len(body)-n:], order}

	t := c.format
	o.Format = t
	o.PID = int(bd.i32If(t&SampleFormatTID != 0))
	o.TID = int(bd.i32If(t&SampleFormatTID != 0))
	o.Time = bd.u64If(t&SampleFormatTime != 0)
	bd.u64If(t&SampleFormatID != 0) // consumed positionally; o.ID set by caller from sampleIDBytePos/otherIDBytePos
	o.StreamID = bd.u64If(t&SampleFormatStreamID != 0)
	o.CPU = bd.u32If(t&SampleFormatCPU != 0)
	o.Res = bd.u32If(t&SampleFormatCPU != 0)
}

// encodeTrailer is the inverse of decodeTrailer: it appends exactly
// trailerBytes() bytes built from o to be.
func (c sampleInfoCodec) encodeTrailer(be *bufEncoder, o *RecordCommon) {
	t := c.format
	be.i32If(t&SampleFormatTID != 0, int32(o.PID))
	be.i32If(t&SampleFormatTID != 0, int32(o.TID))
	be.u64If(t&SampleFormatTime != 0, o.Time)
	be.u64If(t&SampleFormatID != 0, uint64(o.ID))
	be.u64If(t&SampleFormatStreamID != 0, o.StreamID)
	be.u32If(t&SampleFormatCPU != 0, o.CPU)
	be.u32If(t&SampleFormatCPU != 0, o.Res)
}
