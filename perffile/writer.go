// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"
)

// Writer builds a normal-mode perf.data file (spec.md 4.3): it buffers
// every record written to it and the feature metadata assigned to it,
// then emits the file header, attribute table, data section, and
// feature-section index in one pass when Flush is called. This
// mirrors how perf itself writes perf.data: the header's Data.Size and
// the feature-section offsets aren't known until every record has been
// written.
type Writer struct {
	order binary.ByteOrder

	attrs       []*EventAttr
	sampleCodec sampleInfoCodec
	sampleIDAll bool

	meta *FileMeta

	data bytes.Buffer

	log logrus.FieldLogger

	err error
}

// NewWriter creates a Writer that will encode records produced under
// the given event attributes. attrs must be the same slice (or an
// equivalent one) that was used to interpret the records that will be
// passed to WriteRecord, since the codec that locates each record's
// sample_id trailer is derived from their SampleFormat.
func NewWriter(attrs []*EventAttr) *Writer {
	w := &Writer{
		order: binary.LittleEndian,
		attrs: attrs,
		meta:  &FileMeta{},
		log:   logrus.StandardLogger(),
	}
	first := true
	for _, a := range attrs {
		if a.Flags&EventFlagSampleIDAll != 0 {
			w.sampleIDAll = true
		}
		c := newSampleInfoCodec(a.SampleFormat)
		if first {
			w.sampleCodec = c
			first = false
		}
	}
	return w
}

// Meta returns the FileMeta that will be encoded into the output
// file's feature sections; callers populate it before calling Flush.
func (w *Writer) Meta() *FileMeta { return w.meta }

// WriteRecord appends one record to the output data section.
func (w *Writer) WriteRecord(r Record) error {
	if w.err != nil {
		return w.err
	}
	be := &bufEncoder{order: w.order}
	var typ RecordType
	var misc recordMisc

	switch rec := r.(type) {
	case *RecordMmap:
		typ, misc = w.encodeMmap(be, rec)
	case *RecordLost:
		typ = RecordTypeLost
		be.u64(uint64(rec.LostID))
		be.u64(rec.NumLost)
	case *RecordComm:
		typ = RecordTypeComm
		if rec.Exec {
			misc = recordMiscCommExec
		}
		be.i32(int32(rec.PID))
		be.i32(int32(rec.TID))
		be.cstring(rec.Comm)
	case *RecordExit:
		typ = RecordTypeExit
		be.i32(int32(rec.PID))
		be.i32(int32(rec.PPID))
		be.i32(int32(rec.TID))
		be.i32(int32(rec.PTID))
		be.u64(rec.Time)
	case *RecordThrottle:
		typ = rec.Type()
		be.u64(rec.Time)
		id := attrID(0)
		if rec.EventAttr != nil {
			id = w.idOf(rec.EventAttr)
		}
		be.u64(uint64(id))
		be.u64(rec.StreamID)
	case *RecordFork:
		typ = RecordTypeFork
		be.i32(int32(rec.PID))
		be.i32(int32(rec.PPID))
		be.i32(int32(rec.TID))
		be.i32(int32(rec.PTID))
		be.u64(rec.Time)
	case *RecordAux:
		typ = RecordTypeAux
		be.u64(rec.AuxOffset)
		be.u64(rec.AuxSize)
		be.u64(uint64(rec.Flags))
	case *RecordItraceStart:
		typ = RecordTypeItraceStart
	case *RecordLostSamples:
		typ = RecordTypeLostSamples
		be.u64(rec.Lost)
	case *RecordSwitch:
		typ = RecordTypeSwitch
		if rec.Out {
			misc = recordMiscSwitchOut
		}
	case *RecordSwitchCPUWide:
		typ = RecordTypeSwitchCPUWide
		if rec.Out {
			misc = recordMiscSwitchOut
		}
		be.i32(int32(rec.SwitchPID))
		be.i32(int32(rec.SwitchTID))
	case *RecordNamespaces:
		typ = RecordTypeNamespaces
		be.i32(int32(rec.PID))
		be.i32(int32(rec.TID))
		be.u64(uint64(len(rec.Namespaces)))
		for _, ns := range rec.Namespaces {
			be.u64(ns.Dev)
			be.u64(ns.Inode)
		}
	case *RecordKsymbol:
		typ = RecordTypeKsymbol
		be.u64(rec.Addr)
		be.u32(rec.Len)
		be.u16(uint16(rec.Ktype))
		be.u16(uint16(rec.Flags))
		be.u32(0)
		be.cstring(rec.Name)
	case *RecordBPFEvent:
		typ = RecordTypeBPFEvent
		be.u16(uint16(rec.BPFType))
		be.u16(rec.Flags)
		be.u32(rec.ID)
		be.bytes(rec.Tag[:])
	case *RecordCGroup:
		typ = RecordTypeCGroup
		be.u64(rec.CGroupID)
		be.cstring(rec.Path)
	case *RecordTextPoke:
		typ = RecordTypeTextPoke
		be.u64(rec.Addr)
		be.u16(uint16(len(rec.OldData)))
		be.u16(uint16(len(rec.NewData)))
		be.bytes(rec.OldData)
		be.bytes(rec.NewData)
	case *RecordAuxOutputHardwareID:
		typ = RecordTypeAuxOutputHardwareID
		be.u64(rec.HWID)
	case *RecordAuxtraceInfo:
		typ = RecordTypeAuxtraceInfo
		be.u32(rec.PMUType)
		be.u32(0)
		be.u64s(rec.Priv)
	case *RecordAuxtraceError:
		typ = RecordTypeAuxtraceError
		be.u32(rec.ErrorType)
		be.u32(rec.Code)
		be.u32(rec.ErrCPU)
		be.i32(int32(rec.ErrPID))
		be.i32(int32(rec.ErrTID))
		be.u64(rec.IP)
		msg := make([]byte, maxAuxtraceErrorMsg)
		copy(msg, rec.Message)
		be.bytes(msg)
	case *RecordThreadMap:
		typ = RecordTypeThreadMap
		be.u64(uint64(len(rec.Entries)))
		for _, e := range rec.Entries {
			be.u64(e.ThreadPID)
			comm := make([]byte, 16)
			copy(comm, e.Comm)
			be.bytes(comm)
		}
	case *RecordStatConfig:
		typ = RecordTypeStatConfig
		be.u64(uint64(len(rec.Entries)))
		for k, v := range rec.Entries {
			be.u64(k)
			be.u64(v)
		}
	case *RecordStat:
		typ = RecordTypeStat
		be.u64(uint64(rec.StatID))
		be.u32(rec.StatCPU)
		be.u32(rec.Thread)
		be.u64(rec.Value)
		be.u64(rec.Enabled)
		be.u64(rec.Running)
	case *RecordStatRound:
		typ = RecordTypeStatRound
		final := uint64(0)
		if rec.IsFinal {
			final = 1
		}
		be.u64(final)
		be.u64(rec.RoundTime)
	case *RecordTimeConv:
		typ = RecordTypeTimeConv
		be.u64(rec.TimeShift)
		be.u64(rec.TimeMult)
		be.u64(rec.TimeZero)
		if rec.Extended {
			be.u64(rec.TimeCycles)
			be.u64(rec.TimeMask)
			var flags uint8
			if rec.CapUserTimeZero {
				flags |= 0x1
			}
			if rec.CapUserTimeShort {
				flags |= 0x2
			}
			be.u8(flags)
			be.bytes(make([]byte, 7))
		}
	case *RecordFinishedRound:
		typ = RecordTypeFinishedRound
	case *RecordSample:
		typ = RecordTypeSample
		misc = recordMisc(rec.CPUMode)
		if rec.ExactIP {
			misc |= recordMiscExactIP
		}
		w.encodeSample(be, rec)
	case *RecordUnknown:
		typ = rec.RawType
		be.bytes(rec.Data)
	default:
		return &Malformed{"WriteRecord", "unsupported record type"}
	}

	if w.sampleIDAll && typ != RecordTypeSample && typ < recordTypeUserStart {
		if c := r.Common(); c.EventAttr != nil {
			newSampleInfoCodec(c.EventAttr.SampleFormat).encodeTrailer(be, c)
		}
	}

	header := make([]byte, 8)
	w.order.PutUint32(header[0:4], uint32(typ))
	w.order.PutUint16(header[4:6], uint16(misc))
	w.order.PutUint16(header[6:8], uint16(8+len(be.buf)))
	w.data.Write(header)
	w.data.Write(be.buf)
	return nil
}

func (w *Writer) idOf(a *EventAttr) attrID {
	if len(a.ids) > 0 {
		return a.ids[0]
	}
	return 0
}

func (w *Writer) encodeMmap(be *bufEncoder, rec *RecordMmap) (RecordType, recordMisc) {
	var misc recordMisc
	if rec.Data {
		misc |= recordMiscMmapData
	}
	misc |= recordMisc(rec.CPUMode) & recordMiscCPUModeMask
	be.i32(int32(rec.PID))
	be.i32(int32(rec.TID))
	be.u64(rec.Addr)
	be.u64(rec.Len)
	be.u64(rec.FileOffset)
	if rec.BuildID == nil && rec.Major == 0 && rec.Minor == 0 && rec.Ino == 0 {
		// No MMAP2-only fields were ever populated: emit a plain
		// MMAP record, matching what a reader that never saw MMAP2
		// would have produced.
		be.cstring(rec.Filename)
		return RecordTypeMmap, misc
	}
	if rec.BuildID != nil {
		misc |= recordMiscMmapBuildID
		be.u8(uint8(len(rec.BuildID)))
		be.bytes(make([]byte, 3))
		padded := make([]byte, mmap2BuildIDBytes)
		copy(padded, rec.BuildID)
		be.bytes(padded)
	} else {
		be.u32(rec.Major)
		be.u32(rec.Minor)
		be.u64(rec.Ino)
		be.u64(rec.InoGeneration)
	}
	be.u32(rec.Prot)
	be.u32(rec.Flags)
	be.cstring(rec.Filename)
	return recordTypeMmap2, misc
}

func (w *Writer) encodeSample(be *bufEncoder, o *RecordSample) {
	t := o.Format
	be.u64If(t&SampleFormatIdentifier != 0, uint64(o.ID))
	be.u64If(t&SampleFormatIP != 0, o.IP)
	be.i32If(t&SampleFormatTID != 0, int32(o.PID))
	be.i32If(t&SampleFormatTID != 0, int32(o.TID))
	be.u64If(t&SampleFormatTime != 0, o.Time)
	be.u64If(t&SampleFormatAddr != 0, o.Addr)
	be.u64If(t&SampleFormatID != 0, uint64(o.ID))
	be.u64If(t&SampleFormatStreamID != 0, o.StreamID)
	be.u32If(t&SampleFormatCPU != 0, o.CPU)
	be.u32If(t&SampleFormatCPU != 0, o.Res)
	be.u64If(t&SampleFormatPeriod != 0, o.Period)

	if t&SampleFormatRead != 0 {
		w.encodeReadFormat(be, o.EventAttr.ReadFormat, o.SampleRead)
	}

	if t&SampleFormatCallchain != 0 {
		be.u64(uint64(len(o.Callchain)))
		be.u64s(o.Callchain)
	}

	if t&SampleFormatRaw != 0 {
		be.u32(uint32(len(o.Raw)))
		be.bytes(o.Raw)
	}

	if t&SampleFormatBranchStack != 0 {
		if o.EventAttr.BranchSampleType&BranchSampleHWIndex != 0 {
			be.u64(uint64(o.BranchHWIndex))
		}
		be.u64(uint64(len(o.BranchStack)))
		for _, b := range o.BranchStack {
			be.u64(b.From)
			be.u64(b.To)
			flags := uint64(b.Flags) | uint64(b.Cycles)<<4 | uint64(b.Type)<<20
			be.u64(flags)
		}
	}

	if t&SampleFormatRegsUser != 0 {
		be.u64(uint64(o.RegsUserABI))
		be.u64s(o.RegsUser)
	}

	if t&SampleFormatStackUser != 0 {
		be.u64(uint64(len(o.StackUser)))
		be.bytes(o.StackUser)
		if len(o.StackUser) > 0 {
			be.u64(o.StackUserDynSize)
		}
	}

	if t&SampleFormatWeightStruct != 0 {
		w64 := uint64(o.Weights.Var1) | uint64(o.Weights.Var2)<<32 | uint64(o.Weights.Var3)<<48
		be.u64(w64)
	} else {
		be.u64If(t&SampleFormatWeight != 0, o.Weight)
	}

	if t&SampleFormatDataSrc != 0 {
		be.u64(encodeDataSrc(o.DataSrc))
	}

	if t&SampleFormatTransaction != 0 {
		be.u64(uint64(o.Transaction) | uint64(o.AbortCode)<<32)
	}

	if t&SampleFormatRegsIntr != 0 {
		be.u64(uint64(o.RegsIntrABI))
		be.u64s(o.RegsIntr)
	}

	be.u64If(t&SampleFormatPhysAddr != 0, o.PhysAddr)
	be.u64If(t&SampleFormatCGroup != 0, o.CGroup)
	be.u64If(t&SampleFormatDataPageSize != 0, o.DataPageSize)
	be.u64If(t&SampleFormatCodePageSize != 0, o.CodePageSize)
}

func (w *Writer) encodeReadFormat(be *bufEncoder, f ReadFormat, counts []Count) {
	if f&ReadFormatGroup != 0 {
		be.u64(uint64(len(counts)))
		for _, c := range counts {
			be.u64(c.Value)
			be.u64If(f&ReadFormatTotalTimeEnabled != 0, c.TimeEnabled)
			be.u64If(f&ReadFormatTotalTimeRunning != 0, c.TimeRunning)
			be.u64If(f&ReadFormatID != 0, uint64(c.ID))
		}
		return
	}
	if len(counts) == 0 {
		counts = []Count{{}}
	}
	c := counts[0]
	be.u64(c.Value)
	be.u64If(f&ReadFormatTotalTimeEnabled != 0, c.TimeEnabled)
	be.u64If(f&ReadFormatTotalTimeRunning != 0, c.TimeRunning)
	be.u64If(f&ReadFormatID != 0, uint64(c.ID))
}

// Flush writes the complete perf.data file (header, attribute table,
// buffered data section, and feature sections built from w.Meta()) to
// out.
func (w *Writer) Flush(out io.Writer) error {
	if w.err != nil {
		return w.err
	}

	attrsBuf := &bufEncoder{order: w.order}
	idsBufs := make([][]byte, len(w.attrs))
	for i, a := range w.attrs {
		encodeEventAttr(attrsBuf, a)

		idsBuf := &bufEncoder{order: w.order}
		for _, id := range a.ids {
			idsBuf.u64(uint64(id))
		}
		idsBufs[i] = idsBuf.buf
	}

	const fileAttrStride = eventAttrVNSize + 16
	attrSecSize := fileAttrStride * len(w.attrs)

	features := w.encodeFeatures()

	headerSize := fullHeaderSize
	idsOffset := int64(headerSize)
	var idsTotal int64
	for _, b := range idsBufs {
		idsTotal += int64(len(b))
	}
	attrsOffset := idsOffset + idsTotal
	dataOffset := attrsOffset + int64(attrSecSize)
	dataSize := int64(w.data.Len())
	featIdxOffset := dataOffset + dataSize
	featIdxSize := int64(len(features) * 16)
	featDataOffset := featIdxOffset + featIdxSize

	hdr := &bufEncoder{order: w.order}
	hdr.bytes([]byte(magicLE))
	hdr.u64(uint64(fullHeaderSize))
	hdr.u64(uint64(fileAttrStride))
	hdr.u64(uint64(attrsOffset))
	hdr.u64(uint64(attrSecSize))
	hdr.u64(uint64(dataOffset))
	hdr.u64(uint64(dataSize))
	hdr.u64(0)
	hdr.u64(0)
	var fh fileHeader
	for f := range features {
		fh.setFeature(f)
	}
	for _, word := range fh.Features {
		hdr.u64(word)
	}

	if _, err := out.Write(hdr.buf); err != nil {
		return err
	}

	for _, b := range idsBufs {
		if _, err := out.Write(b); err != nil {
			return err
		}
	}

	idsOff := idsOffset
	attrPos := 0
	for i := range w.attrs {
		attrEnd := attrPos + eventAttrVNSize
		if _, err := out.Write(attrsBuf.buf[attrPos:attrEnd]); err != nil {
			return err
		}
		attrPos = attrEnd
		sec := &bufEncoder{order: w.order}
		sec.u64(uint64(idsOff))
		sec.u64(uint64(len(idsBufs[i])))
		if _, err := out.Write(sec.buf); err != nil {
			return err
		}
		idsOff += int64(len(idsBufs[i]))
	}

	if _, err := out.Write(w.data.Bytes()); err != nil {
		return err
	}

	off := featDataOffset
	idxBuf := &bufEncoder{order: w.order}
	ordered := make([]feature, 0, len(features))
	for f := range features {
		ordered = append(ordered, f)
	}
	for bit := feature(0); bit < feature(numFeatureBits); bit++ {
		if fh.hasFeature(bit) {
			data := features[bit]
			idxBuf.u64(uint64(off))
			idxBuf.u64(uint64(len(data)))
			off += int64(len(data))
		}
	}
	if _, err := out.Write(idxBuf.buf); err != nil {
		return err
	}
	for bit := feature(0); bit < feature(numFeatureBits); bit++ {
		if data, ok := features[bit]; ok {
			if _, err := out.Write(data); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Writer) encodeFeatures() map[feature][]byte {
	out := map[feature][]byte{}
	str := func(s string) []byte {
		be := &bufEncoder{order: w.order}
		be.u32(uint32(len(s) + 1))
		be.bytes([]byte(s))
		be.u8(0)
		return be.buf
	}
	m := w.meta
	if m == nil {
		return out
	}
	if m.Hostname != "" {
		out[featureHostname] = str(m.Hostname)
	}
	if m.OSRelease != "" {
		out[featureOSRelease] = str(m.OSRelease)
	}
	if m.Version != "" {
		out[featureVersion] = str(m.Version)
	}
	if m.Arch != "" {
		out[featureArch] = str(m.Arch)
	}
	if m.CPUDesc != "" {
		out[featureCPUDesc] = str(m.CPUDesc)
	}
	if m.CPUID != "" {
		out[featureCPUID] = str(m.CPUID)
	}
	if m.CmdLine != nil {
		be := &bufEncoder{order: w.order}
		be.stringList(m.CmdLine)
		out[featureCmdline] = be.buf
	}
	if m.BuildIDs != nil {
		be := &bufEncoder{order: w.order}
		for _, bid := range m.BuildIDs {
			entryStart := len(be.buf)
			be.u32(uint32(RecordTypeHeaderBuildID))
			be.u16(uint16(bid.CPUMode))
			be.u16(0) // size patched below
			be.i32(int32(bid.PID))
			padded := make([]byte, 24)
			copy(padded, bid.BuildID)
			be.bytes(padded)
			be.cstring(bid.Filename)
			size := len(be.buf) - entryStart
			w.order.PutUint16(be.buf[entryStart+6:entryStart+8], uint16(size))
		}
		out[featureBuildID] = be.buf
	}
	return out
}
