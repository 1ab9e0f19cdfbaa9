// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// A File is an open perf.data file, either read from a seekable
// io.ReaderAt (normal mode, spec.md 4.3) or streamed from an io.Reader
// (piped mode, spec.md 4.4). Use New or Open for the former and
// NewPiped for the latter.
type File struct {
	r      io.ReaderAt
	closer io.Closer
	hdr    fileHeader
	piped  bool

	order binary.ByteOrder

	// swapBranchFlags is set when the file was written by a
	// foreign-endian host: branch_entry.flags is a C bitfield, not a
	// plain integer, so in addition to the normal byte-order
	// conversion its bits must be reversed within each byte
	// (byteio.go's swapBranchFlags; spec.md 6).
	swapBranchFlags bool

	attrs       []*EventAttr
	idToAttr    map[attrID]*EventAttr
	sampleIDAll bool
	sampleCodec sampleInfoCodec

	featureSections map[feature]fileSection

	// pipeReader is the buffered stream Records reads from in piped
	// mode. Unused in normal mode.
	pipeReader *bufio.Reader

	log logrus.FieldLogger
}

// Option configures optional behavior of New, Open, and NewPiped.
type Option func(*File)

// WithLogger overrides the default logger (logrus.StandardLogger()).
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *File) { f.log = log }
}

// New reads a normal-mode "perf.data" file from r.
//
// The caller must keep r open as long as it is using the returned
// *File.
func New(r io.ReaderAt, opts ...Option) (*File, error) {
	file := &File{r: r, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(file)
	}

	probe := make([]byte, 8)
	if _, err := r.ReadAt(probe, 0); err != nil {
		return nil, &Truncated{"file magic", 8, 0}
	}
	switch string(probe) {
	case magicLE:
		file.order = binary.LittleEndian
	case magicBE:
		file.order = binary.BigEndian
		file.swapBranchFlags = true
	default:
		return nil, &Malformed{"file header", "bad magic " + string(probe)}
	}

	hdrBuf := make([]byte, fullHeaderSize)
	if _, err := r.ReadAt(hdrBuf, 0); err != nil {
		return nil, &Truncated{"file header", fullHeaderSize, 0}
	}
	bd := &bufDecoder{hdrBuf, file.order}
	bd.bytes(file.hdr.Magic[:])
	file.hdr.Size = bd.u64()
	file.hdr.AttrSize = bd.u64()
	file.hdr.Attrs = fileSection{bd.u64(), bd.u64()}
	file.hdr.Data = fileSection{bd.u64(), bd.u64()}
	bd.skip(16) // ignored event_types section
	for i := range file.hdr.Features {
		file.hdr.Features[i] = bd.u64()
	}

	if file.hdr.Size != fullHeaderSize {
		return nil, &Malformed{"file header", "unexpected header size"}
	}

	if err := file.readAttrs(r); err != nil {
		return nil, err
	}
	if err := file.readIDs(r); err != nil {
		return nil, err
	}

	file.featureSections = make(map[feature]fileSection)
	secData, err := fileSection{
		Offset: file.hdr.Data.Offset + file.hdr.Data.Size,
		Size:   uint64(file.hdr.featureCount() * 16),
	}.data(r)
	if err != nil {
		return nil, err
	}
	fbd := &bufDecoder{secData, file.order}
	for bit := feature(0); bit < feature(numFeatureBits); bit++ {
		if !file.hdr.hasFeature(bit) {
			continue
		}
		file.featureSections[bit] = fileSection{fbd.u64(), fbd.u64()}
	}

	return file, nil
}

// readAttrs reads the normal-mode attribute table: one fileAttr (an
// EventAttr plus the fileSection listing its attrIDs) per configured
// event.
func (f *File) readAttrs(r io.ReaderAt) error {
	n := int(f.hdr.Attrs.Size / f.hdr.AttrSize)
	sec, err := f.hdr.Attrs.data(r)
	if err != nil {
		return err
	}
	attrSize := int(f.hdr.AttrSize) - 16 // fileAttr is {Attr, IDs fileSection (16 bytes)}
	for i := 0; i < n; i++ {
		raw := sec[i*int(f.hdr.AttrSize) : i*int(f.hdr.AttrSize)+attrSize]
		padded := raw
		if len(raw) < eventAttrVNSize {
			// Upgrade by zero-padding: an older-ABI capture wrote a
			// shorter perf_event_attr; reinterpreting with the
			// missing tail as zero matches the kernel's own
			// behavior, since every ABI extension added fields at
			// the end (spec.md 4.4).
			padded = make([]byte, eventAttrVNSize)
			copy(padded, raw)
		}
		attr, err := decodeEventAttr(padded, f.order)
		if err != nil {
			return err
		}
		f.attrs = append(f.attrs, &attr)
	}
	return nil
}

func (f *File) readIDs(r io.ReaderAt) error {
	// perf_file_attr is { perf_event_attr (AttrSize-16 bytes), perf_file_section ids (16 bytes) }
	sec, err := f.hdr.Attrs.data(r)
	if err != nil {
		return err
	}
	stride := int(f.hdr.AttrSize)
	f.idToAttr = make(map[attrID]*EventAttr)
	for i, attr := range f.attrs {
		rec := sec[i*stride : (i+1)*stride]
		idsOff := f.order.Uint64(rec[stride-16:])
		idsSize := f.order.Uint64(rec[stride-8:])
		idsData, err := fileSection{idsOff, idsSize}.data(r)
		if err != nil {
			return err
		}
		ibd := &bufDecoder{idsData, f.order}
		var ids []attrID
		for len(ibd.buf) >= 8 {
			id := attrID(ibd.u64())
			ids = append(ids, id)
			f.idToAttr[id] = attr
		}
		attr.ids = ids
	}

	if len(f.idToAttr) == 0 {
		if len(f.attrs) != 1 {
			return &Malformed{"attr ids", "multiple EventAttrs but no ids"}
		}
		if f.attrs[0].SampleFormat&(SampleFormatID|SampleFormatIdentifier) != 0 {
			return &Malformed{"attr ids", "sample format carries an ID field but no ids were recorded"}
		}
		f.idToAttr[0] = f.attrs[0]
	}

	f.sampleIDAll = false
	var codec sampleInfoCodec
	first := true
	for _, attr := range f.attrs {
		if attr.Flags&EventFlagSampleIDAll != 0 {
			f.sampleIDAll = true
		}
		c := newSampleInfoCodec(attr.SampleFormat)
		if first {
			codec = c
			first = false
		} else if err := codec.consistent(c); err != nil {
			return err
		}
	}
	f.sampleCodec = codec
	return nil
}

// Open opens the named "perf.data" file using os.Open.
//
// The caller must call f.Close() on the returned file when done.
func Open(name string, opts ...Option) (*File, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	ff, err := New(r, opts...)
	if err != nil {
		r.Close()
		return nil, err
	}
	ff.closer = r
	return ff, nil
}

// NewPiped reads a piped-mode perf.data stream from r (spec.md 4.4):
// everything New's file-header and feature-section parsing would do
// instead arrives inline as synthetic records (RecordHeaderAttr,
// RecordHeaderBuildID, RecordHeaderFeature, RecordHeaderTracingData),
// which the caller discovers by iterating Records like any other
// record type.
//
// NewPiped does not block reading the whole stream up front: it reads
// only the 16-byte pipe header before returning, and the returned
// File's attribute table is populated lazily as RecordHeaderAttr
// records are consumed.
func NewPiped(r io.Reader, opts ...Option) (*File, error) {
	file := &File{piped: true, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(file)
	}

	br := bufio.NewReader(r)
	var hdr [16]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, &Truncated{"pipe header", 16, 0}
	}
	switch string(hdr[0:8]) {
	case magicLE:
		file.order = binary.LittleEndian
	case magicBE:
		file.order = binary.BigEndian
		file.swapBranchFlags = true
	default:
		return nil, &Malformed{"pipe header", "bad magic"}
	}

	file.idToAttr = make(map[attrID]*EventAttr)
	file.featureSections = make(map[feature]fileSection)
	file.sampleCodec = newSampleInfoCodec(0) // no ID field until a RecordHeaderAttr arrives
	file.pipeReader = br
	return file, nil
}

// registerAttr records an attribute announced by a RecordHeaderAttr
// (spec.md 4.4), deduplicating by the event's config the way spec.md
// 4.4's "Attribute deduplication" requires: a piped stream can
// re-announce the same logical attribute (e.g. once per CPU or once
// per merged sub-stream), and each announcement must extend that one
// attribute's ids rather than register a second, shadowing EventAttr
// that getAttr would never resolve IDs against. It also keeps
// sampleIDAll/sampleCodec in sync so parseSample/parseCommon/getAttr
// can resolve attribute IDs as soon as the attribute is known, instead
// of only after the whole stream has been buffered.
func (f *File) registerAttr(attr *EventAttr, ids []attrID) error {
	existing := attr
	for _, a := range f.attrs {
		if attrConfigEqual(a, attr) {
			existing = a
			break
		}
	}
	if existing == attr {
		f.attrs = append(f.attrs, existing)
	}
	if f.idToAttr == nil {
		f.idToAttr = make(map[attrID]*EventAttr)
	}
	for _, id := range ids {
		f.idToAttr[id] = existing
	}
	existing.ids = append(existing.ids, ids...)

	if existing.Flags&EventFlagSampleIDAll != 0 {
		f.sampleIDAll = true
	}
	c := newSampleInfoCodec(existing.SampleFormat)
	if len(f.attrs) == 1 {
		f.sampleCodec = c
	} else if err := f.sampleCodec.consistent(c); err != nil {
		return err
	}
	return nil
}

// attrConfigEqual reports whether a and b describe the same
// perf_event_attr.{type,config,config1,config2} — the identity spec.md
// 4.4's attribute dedup is keyed on, independent of sample formatting.
func attrConfigEqual(a, b *EventAttr) bool {
	ga, gb := a.Event.Generic(), b.Event.Generic()
	if ga.Type != gb.Type || ga.ID != gb.ID || len(ga.Config) != len(gb.Config) {
		return false
	}
	for i := range ga.Config {
		if ga.Config[i] != gb.Config[i] {
			return false
		}
	}
	return true
}

// Close closes the File.
//
// If the File was created using New or NewPiped directly instead of
// Open, Close has no effect.
func (f *File) Close() error {
	var err error
	if f.closer != nil {
		err = f.closer.Close()
		f.closer = nil
	}
	return err
}

// Records returns an iterator over the records in f.
func (f *File) Records() *Records {
	if f.piped {
		return &Records{f: f, sr: f.pipeReader}
	}
	return &Records{f: f, sr: f.hdr.Data.sectionReader(f.r)}
}

func (f *File) stringFeature(bit feature) (string, error) {
	sec, ok := f.featureSections[bit]
	if !ok {
		return "", nil
	}
	data, err := sec.data(f.r)
	if err != nil {
		return "", err
	}
	bd := bufDecoder{data, f.order}
	bd.u32() // length; string is also \0-terminated
	return bd.cstring(), nil
}

// Hostname returns the hostname of the machine that recorded this
// profile, or "" if unknown.
func (f *File) Hostname() (string, error) { return f.stringFeature(featureHostname) }

// OSRelease returns the OS release of the machine that recorded this
// profile, or "" if unknown.
func (f *File) OSRelease() (string, error) { return f.stringFeature(featureOSRelease) }

// Version returns the perf version that recorded this profile, or ""
// if unknown.
func (f *File) Version() (string, error) { return f.stringFeature(featureVersion) }

// Arch returns the host architecture of the machine that recorded
// this profile, or "" if unknown.
func (f *File) Arch() (string, error) { return f.stringFeature(featureArch) }

// CPUDesc returns a string describing the CPU of the machine that
// recorded this profile, or "" if unknown.
func (f *File) CPUDesc() (string, error) { return f.stringFeature(featureCPUDesc) }

// CPUID returns the CPUID string of the machine that recorded this
// profile, or "" if unknown.
func (f *File) CPUID() (string, error) { return f.stringFeature(featureCPUID) }

// CmdLine returns the list of command line arguments perf was invoked
// with, or nil if unknown.
func (f *File) CmdLine() ([]string, error) {
	sec, ok := f.featureSections[featureCmdline]
	if !ok {
		return nil, nil
	}
	data, err := sec.data(f.r)
	if err != nil {
		return nil, err
	}
	bd := bufDecoder{data, f.order}
	return bd.stringList(), nil
}

// Meta reads and decodes every feature section present in f into a
// single FileMeta (spec.md 4.3).
func (f *File) Meta() (*FileMeta, error) {
	m := &FileMeta{}
	bits := make([]feature, 0, len(f.featureSections))
	for bit := range f.featureSections {
		bits = append(bits, bit)
	}
	// Feature bits are parsed in ascending order, not map order,
	// since parseCPUTopology's extended per-CPU layout depends on
	// featureNrCpus (a lower bit) having already populated
	// m.CPUsOnline.
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })
	for _, bit := range bits {
		if err := m.parse(bit, f.featureSections[bit], f.r, f.order); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// EventAttrs returns the event attributes configured for this
// profile, in file order.
func (f *File) EventAttrs() []*EventAttr {
	return f.attrs
}
