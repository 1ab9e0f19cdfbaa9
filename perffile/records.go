// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"io"
)

// Record is the common interface implemented by all profile record
// types.
type Record interface {
	Type() RecordType
	Common() *RecordCommon
}

// RecordCommon stores fields that are common to all record types.
//
// Many fields are optional and their presence is determined by the
// bitmask EventAttr.SampleFormat (spec.md 4.2). Some record types
// guarantee that some of these fields will be filled regardless of
// SampleFormat.
type RecordCommon struct {
	// Offset is the byte offset of this record's header within the
	// data section (or, in piped mode, within the pipe).
	Offset int64

	// Format records which of the optional fields below are valid,
	// taken from the producing EventAttr's SampleFormat.
	Format SampleFormat

	// EventAttr is the attribute that produced this record, if it
	// could be determined from the record's sample_id trailer.
	EventAttr *EventAttr

	PID, TID int    // if Format&SampleFormatTID != 0
	Time     uint64 // if Format&SampleFormatTime != 0
	ID       attrID // if Format&(SampleFormatID|SampleFormatIdentifier) != 0
	StreamID uint64 // if Format&SampleFormatStreamID != 0
	CPU, Res uint32 // if Format&SampleFormatCPU != 0
}

func (r *RecordCommon) Common() *RecordCommon { return r }

// RecordUnknown is a record of a type this package doesn't decode, or
// whose contents are out of scope (spec.md 1's Non-goals). Data is
// the raw record body with the 8-byte header stripped.
type RecordUnknown struct {
	RecordCommon
	RawType RecordType
	Data    []byte
}

func (r *RecordUnknown) Type() RecordType { return r.RawType }

// RecordMmap records a process's memory mapping, either because the
// mapping happened during the profile or because it existed when
// profiling began (spec.md 5). Records read from an MMAP2 event carry
// BuildID or (Major, Minor, Ino, InoGeneration) depending on whether
// the kernel recorded a build ID inline.
type RecordMmap struct {
	RecordCommon

	Data bool // non-executable data mapping

	// CPUMode is the privilege level the mapping was recorded under,
	// taken from the record header's misc bits. A BuildIDStore uses
	// this as the misc bit for the BuildIDInfo it first sees this
	// mapping's filename under (spec.md 4.4).
	CPUMode CPUMode

	Addr, Len  uint64
	FileOffset uint64

	Major, Minor       uint32 // valid if BuildID == nil
	Ino, InoGeneration uint64 // valid if BuildID == nil
	BuildID            []byte // valid instead of Major/Minor/Ino/InoGeneration

	Prot, Flags uint32
	Filename    string
}

func (r *RecordMmap) Type() RecordType { return RecordTypeMmap }

type RecordLost struct {
	RecordCommon
	LostID  attrID
	NumLost uint64
}

func (r *RecordLost) Type() RecordType { return RecordTypeLost }

type RecordComm struct {
	RecordCommon
	Exec bool
	Comm string
}

func (r *RecordComm) Type() RecordType { return RecordTypeComm }

type RecordExit struct {
	RecordCommon
	PPID, PTID int
}

func (r *RecordExit) Type() RecordType { return RecordTypeExit }

type RecordThrottle struct {
	RecordCommon
	Enable bool // false for an unthrottle event
	Stream uint64
}

func (r *RecordThrottle) Type() RecordType {
	if r.Enable {
		return RecordTypeThrottle
	}
	return RecordTypeUnthrottle
}

type RecordFork struct {
	RecordCommon
	PPID, PTID int
}

func (r *RecordFork) Type() RecordType { return RecordTypeFork }

type AuxFlags uint32

const (
	AuxFlagTruncated AuxFlags = 1 << iota
	AuxFlagOverwrite
	AuxFlagPartial
	AuxFlagCollision
)

type RecordAux struct {
	RecordCommon
	AuxOffset, AuxSize uint64
	Flags              AuxFlags
}

func (r *RecordAux) Type() RecordType { return RecordTypeAux }

type RecordItraceStart struct {
	RecordCommon
}

func (r *RecordItraceStart) Type() RecordType { return RecordTypeItraceStart }

type RecordLostSamples struct {
	RecordCommon
	Lost uint64
}

func (r *RecordLostSamples) Type() RecordType { return RecordTypeLostSamples }

type RecordSwitch struct {
	RecordCommon
	Out bool
}

func (r *RecordSwitch) Type() RecordType { return RecordTypeSwitch }

type RecordSwitchCPUWide struct {
	RecordCommon
	Out                  bool
	SwitchPID, SwitchTID int
}

func (r *RecordSwitchCPUWide) Type() RecordType { return RecordTypeSwitchCPUWide }

type Namespace struct {
	Dev, Inode uint64
}

type RecordNamespaces struct {
	RecordCommon
	Namespaces []Namespace
}

func (r *RecordNamespaces) Type() RecordType { return RecordTypeNamespaces }

type KsymbolType uint16

const (
	KsymbolTypeUnknown KsymbolType = iota
	KsymbolTypeBPF
	KsymbolTypeOOL
)

type KsymbolFlags uint16

const (
	KsymbolFlagUnregister KsymbolFlags = 1 << iota
)

type RecordKsymbol struct {
	RecordCommon
	Addr  uint64
	Len   uint32
	Ktype KsymbolType
	Flags KsymbolFlags
	Name  string
}

func (r *RecordKsymbol) Type() RecordType { return RecordTypeKsymbol }

type BPFEventType uint16

const (
	BPFEventTypeUnknown BPFEventType = iota
	BPFEventTypeProgLoad
	BPFEventTypeProgUnload
)

type RecordBPFEvent struct {
	RecordCommon
	BPFType BPFEventType
	Flags   uint16
	ID      uint32
	Tag     [8]byte
}

func (r *RecordBPFEvent) Type() RecordType { return RecordTypeBPFEvent }

type RecordCGroup struct {
	RecordCommon
	CGroupID uint64
	Path     string
}

func (r *RecordCGroup) Type() RecordType { return RecordTypeCGroup }

type RecordTextPoke struct {
	RecordCommon
	Addr    uint64
	OldData []byte
	NewData []byte
}

func (r *RecordTextPoke) Type() RecordType { return RecordTypeTextPoke }

type RecordAuxOutputHardwareID struct {
	RecordCommon
	HWID uint64
}

func (r *RecordAuxOutputHardwareID) Type() RecordType { return RecordTypeAuxOutputHardwareID }

// RecordAuxtraceInfo carries PMU-specific configuration for subsequent
// RecordAuxtrace blocks. Priv is opaque: decoding the hardware trace
// format it describes is out of scope (spec.md 1, Non-goals).
type RecordAuxtraceInfo struct {
	RecordCommon
	PMUType uint32
	Priv    []uint64
}

func (r *RecordAuxtraceInfo) Type() RecordType { return RecordTypeAuxtraceInfo }

// RecordAuxtrace describes a block of AUX trace data immediately
// following it in the stream. Data holds that block verbatim; this
// package does not interpret it.
type RecordAuxtrace struct {
	RecordCommon
	AuxSize uint64
	AuxOff  uint64
	Ref     uint64
	Idx     uint32
	AuxTID  int
	AuxCPU  uint32

	Data []byte
}

func (r *RecordAuxtrace) Type() RecordType { return RecordTypeAuxtrace }

const maxAuxtraceErrorMsg = 64

type RecordAuxtraceError struct {
	RecordCommon
	ErrorType uint32
	Code      uint32
	ErrCPU    uint32
	ErrPID    int
	ErrTID    int
	IP        uint64
	Message   string
}

func (r *RecordAuxtraceError) Type() RecordType { return RecordTypeAuxtraceError }

type ThreadMapEntry struct {
	ThreadPID uint64
	Comm      string
}

type RecordThreadMap struct {
	RecordCommon
	Entries []ThreadMapEntry
}

func (r *RecordThreadMap) Type() RecordType { return RecordTypeThreadMap }

// RecordStatConfig carries the key/value configuration that `perf
// stat --post-process`-style recordings attach once to the stream.
// The keys are the PERF_STAT_CONFIG_TERM_* enum, not otherwise
// meaningful to this package, so they're kept as a raw map.
type RecordStatConfig struct {
	RecordCommon
	Entries map[uint64]uint64
}

func (r *RecordStatConfig) Type() RecordType { return RecordTypeStatConfig }

type RecordStat struct {
	RecordCommon
	StatID  attrID
	StatCPU uint32
	Thread  uint32
	Value   uint64
	Enabled uint64
	Running uint64
}

func (r *RecordStat) Type() RecordType { return RecordTypeStat }

type RecordStatRound struct {
	RecordCommon
	IsFinal   bool
	RoundTime uint64
}

func (r *RecordStatRound) Type() RecordType { return RecordTypeStatRound }

// RecordTimeConv carries the parameters needed to convert a sample's
// perf_clock Time field into wall-clock time (spec.md 9). The
// Extended fields were added to the kernel ABI later; Extended
// reports whether they were present on disk for this record.
type RecordTimeConv struct {
	RecordCommon
	TimeShift uint64
	TimeMult  uint64
	TimeZero  uint64

	Extended         bool
	TimeCycles       uint64
	TimeMask         uint64
	CapUserTimeZero  bool
	CapUserTimeShort bool
}

func (r *RecordTimeConv) Type() RecordType { return RecordTypeTimeConv }

// RecordFinishedRound marks that every record before it in the stream
// sorts before every record after it. Parser drops these from its
// output (spec.md 9); its chronological sort orders the whole record
// sequence at once and does not use them as boundaries.
type RecordFinishedRound struct {
	RecordCommon
}

func (r *RecordFinishedRound) Type() RecordType { return RecordTypeFinishedRound }

// RecordHeaderAttr is the piped-mode synthesized equivalent of one
// normal-mode attribute-table entry (spec.md 4.4): it carries both the
// EventAttr and the attrIDs that route samples to it.
type RecordHeaderAttr struct {
	RecordCommon
	Attr EventAttr
	IDs  []attrID
}

func (r *RecordHeaderAttr) Type() RecordType { return RecordTypeHeaderAttr }

// RecordHeaderEventType is the piped-mode synthesized equivalent of
// the deprecated per-type event_type table; this package does not
// interpret its contents.
type RecordHeaderEventType struct {
	RecordCommon
	Data []byte
}

func (r *RecordHeaderEventType) Type() RecordType { return RecordTypeHeaderEventType }

// RecordHeaderTracingData carries an opaque ftrace metadata blob. Its
// header.Size lies about the payload length (spec.md 4.3): the real
// length is a uint32 at the start of the body, which Reader reads
// separately and stores here as Size. Data holds exactly that many
// bytes.
type RecordHeaderTracingData struct {
	RecordCommon
	Size uint64
	Data []byte
}

func (r *RecordHeaderTracingData) Type() RecordType { return RecordTypeHeaderTracingData }

// RecordHeaderBuildID is the piped-mode equivalent of one entry of the
// normal-mode BUILD_ID feature section.
type RecordHeaderBuildID struct {
	RecordCommon
	BuildCPUMode CPUMode
	BuildPID     int
	BuildID      []byte
	Filename     string
}

func (r *RecordHeaderBuildID) Type() RecordType { return RecordTypeHeaderBuildID }

// RecordHeaderFeature is the piped-mode envelope for one normal-mode
// feature section. Data is the raw feature payload (no id prefix);
// Feature names which feature it is so the same decoders meta.go uses
// for normal mode can parse it.
type RecordHeaderFeature struct {
	RecordCommon
	Feature feature
	Data    []byte
}

func (r *RecordHeaderFeature) Type() RecordType { return RecordTypeHeaderFeature }

// RecordSample records one profiling sample: an interrupted
// instruction pointer, optionally a data address, call chain, branch
// stack, and other contextual fields selected by
// EventAttr.SampleFormat (spec.md 4.2, 5, 6).
type RecordSample struct {
	RecordCommon

	CPUMode CPUMode
	ExactIP bool

	IP   uint64
	Addr uint64

	Period uint64

	SampleRead []Count

	Callchain []uint64

	BranchHWIndex int64
	BranchStack   []BranchRecord

	RegsUserABI SampleRegsABI
	RegsUser    []uint64

	StackUser        []byte
	StackUserDynSize uint64

	Weight  uint64
	Weights Weights

	DataSrc DataSrc

	Transaction Transaction
	AbortCode   uint32

	RegsIntrABI SampleRegsABI
	RegsIntr    []uint64

	PhysAddr uint64

	CGroup uint64

	DataPageSize uint64
	CodePageSize uint64

	Raw []byte

	// DSO and DataDSO are resolved by perfparser.Parser, not Reader;
	// they are the zero DSOAndOffset until the parser fills them in.
	DSO     DSOAndOffset
	DSOOK   bool
	DataDSO DSOAndOffset
	DataOK  bool
}

func (r *RecordSample) Type() RecordType { return RecordTypeSample }

// DSOAndOffset names the shared object a resolved address falls
// inside and its byte offset within that object (spec.md 6).
type DSOAndOffset struct {
	DSOName string
	Offset  uint64
	BuildID []byte
}

type SampleRegsABI uint64

const (
	SampleRegsABINone SampleRegsABI = iota
	SampleRegsABI32
	SampleRegsABI64
)

// Count is one entry of RecordSample.SampleRead, describing the
// counter value of a single event in a group (spec.md 4.2, ReadFormat).
type Count struct {
	Value       uint64
	ID          attrID
	TimeEnabled uint64
	TimeRunning uint64
}

type BranchRecord struct {
	From, To uint64
	Flags    BranchFlags
	Cycles   uint16
	Type     BranchType
}

type BranchFlags uint8

const (
	BranchFlagMispredicted BranchFlags = 1 << iota
	BranchFlagPredicted
	BranchFlagInTransaction
	BranchFlagAbort
)

type BranchType uint8

const (
	BranchTypeUnknown BranchType = iota
	BranchTypeCond
	BranchTypeUncond
	BranchTypeInd
	BranchTypeCall
	BranchTypeIndCall
	BranchTypeRet
	BranchTypeSyscall
	BranchTypeSysret
	BranchTypeCondCall
	BranchTypeCondRet
)

const (
	CallchainHV          uint64 = 0xffffffffffffffe0
	CallchainKernel             = 0xffffffffffffff80
	CallchainUser               = 0xfffffffffffffe00
	CallchainGuest              = 0xfffffffffffff800
	CallchainGuestKernel        = 0xfffffffffffff780
	CallchainGuestUser          = 0xfffffffffffff600
)

// DataSrc decodes the PERF_SAMPLE_DATA_SRC memory hierarchy
// classification of a sample's data address (spec.md 6).
type DataSrc struct {
	Op     DataSrcOp
	Miss   bool
	Level  DataSrcLevel
	Snoop  DataSrcSnoop
	Locked DataSrcLock
	TLB    DataSrcTLB
}

type DataSrcOp int

const (
	DataSrcOpNA DataSrcOp = iota
	DataSrcOpLoad
	DataSrcOpStore
	DataSrcOpPrefetch
	DataSrcOpExec
)

type DataSrcLevel int

const (
	DataSrcLevelNA DataSrcLevel = iota
	DataSrcLevelL1
	DataSrcLevelLFB
	DataSrcLevelL2
	DataSrcLevelL3
	DataSrcLevelLocalRAM
	DataSrcLevelRemoteRAM1
	DataSrcLevelRemoteRAM2
	DataSrcLevelRemoteCache1
	DataSrcLevelRemoteCache2
	DataSrcLevelIO
	DataSrcLevelUncached
)

type DataSrcSnoop int

const (
	DataSrcSnoopNA DataSrcSnoop = iota
	DataSrcSnoopNone
	DataSrcSnoopHit
	DataSrcSnoopMiss
	DataSrcSnoopHitM
)

type DataSrcLock int

const (
	DataSrcLockNA DataSrcLock = iota
	DataSrcLockUnlocked
	DataSrcLockLocked
)

type DataSrcTLB int

const (
	DataSrcTLBNA DataSrcTLB = iota
	DataSrcTLBHit
	DataSrcTLBMiss
	DataSrcTLBL1
	DataSrcTLBL2
	DataSrcTLBHardwareWalker
	DataSrcTLBOSFaultHandler
)

// decodeDataSrc unpacks the perf_mem_data_src bitfield from
// include/uapi/linux/perf_event.h: 5 sub-fields, each reserving its
// low bit as an "NA" marker.
func decodeDataSrc(d uint64) (out DataSrc) {
	op := (d >> 0) & 0x1f
	lvl := (d >> 5) & 0x3fff
	snoop := (d >> 19) & 0x1f
	lock := (d >> 24) & 0x3
	dtlb := (d >> 26) & 0x7f

	if op&0x1 != 0 {
		out.Op = DataSrcOpNA
	} else {
		out.Op = DataSrcOp(op >> 1)
	}
	if lvl&0x1 != 0 {
		out.Level = DataSrcLevelNA
	} else {
		out.Miss = lvl&0x4 != 0
		out.Level = DataSrcLevel(lvl >> 3)
	}
	if snoop&0x1 != 0 {
		out.Snoop = DataSrcSnoopNA
	} else {
		out.Snoop = DataSrcSnoop(snoop >> 1)
	}
	switch {
	case lock&0x1 != 0:
		out.Locked = DataSrcLockNA
	case lock&0x2 != 0:
		out.Locked = DataSrcLockLocked
	default:
		out.Locked = DataSrcLockUnlocked
	}
	if dtlb&0x1 != 0 {
		out.TLB = DataSrcTLBNA
	} else {
		out.TLB = DataSrcTLB(dtlb >> 1)
	}
	return
}

func encodeDataSrc(d DataSrc) uint64 {
	var op, lvl, snoop, lock, dtlb uint64
	if d.Op == DataSrcOpNA {
		op = 1
	} else {
		op = uint64(d.Op) << 1
	}
	if d.Level == DataSrcLevelNA {
		lvl = 1
	} else {
		lvl = uint64(d.Level) << 3
		if d.Miss {
			lvl |= 0x4
		}
	}
	if d.Snoop == DataSrcSnoopNA {
		snoop = 1
	} else {
		snoop = uint64(d.Snoop) << 1
	}
	switch d.Locked {
	case DataSrcLockNA:
		lock = 1
	case DataSrcLockLocked:
		lock = 0x2
	}
	if d.TLB == DataSrcTLBNA {
		dtlb = 1
	} else {
		dtlb = uint64(d.TLB) << 1
	}
	return (op << 0) | (lvl << 5) | (snoop << 19) | (lock << 24) | (dtlb << 26)
}

type Transaction uint64

const (
	TransactionElision Transaction = 1 << iota
	TransactionTransaction
	TransactionSync
	TransactionAsync
	TransactionRetry
	TransactionConflict
	TransactionCapacityWrite
	TransactionCapacityRead
)

// Weights decodes PERF_SAMPLE_WEIGHT_STRUCT's three sub-fields; for
// plain PERF_SAMPLE_WEIGHT formats only RecordSample.Weight is
// meaningful.
type Weights struct {
	Var1 uint32
	Var2 uint16
	Var3 uint16
}

// A Records is an iterator over the records in a perf.data file's
// data section (or, for a piped-mode File, over its event stream).
//
// Typical usage is
//
//	rs := file.Records()
//	for rs.Next() {
//		switch r := rs.Record.(type) {
//		...
//		}
//	}
//	if err := rs.Err(); err != nil { ... }
type Records struct {
	f   *File
	sr  io.Reader
	err error

	// Record is the most recently decoded record. Determine its
	// concrete type with a type switch.
	Record Record

	buf []byte

	offset int64
}

// Err returns the first error Next encountered, or nil if Next has
// not yet returned false, or returned false because it reached the
// end of the stream.
func (r *Records) Err() error { return r.err }

// Next decodes the next record into r.Record. It reports whether it
// succeeded; it returns false at end of stream or on error, and
// subsequent calls to Next always return false once it has failed.
//
// The value stored in r.Record may share storage with a
// previously-returned record; callers that need to retain a record
// across calls to Next must copy it first.
func (r *Records) Next() bool {
	if r.err != nil {
		return false
	}

	var hdrBuf [8]byte
	if _, err := io.ReadFull(r.sr, hdrBuf[:]); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			r.err = err
		}
		return false
	}
	order := r.f.order
	hdr := recordHeader{
		Type: RecordType(order.Uint32(hdrBuf[0:4])),
		Misc: recordMisc(order.Uint16(hdrBuf[4:6])),
		Size: order.Uint16(hdrBuf[6:8]),
	}
	offset := r.offset
	r.offset += int64(hdr.Size)

	if hdr.Size < 8 {
		r.err = &Malformed{"record header", "size smaller than header"}
		return false
	}
	rlen := int(hdr.Size) - 8

	// RecordTypeHeaderTracingData lies about its size (spec.md 4.3):
	// the real payload length follows as a separate uint32 that is
	// not included in hdr.Size.
	if hdr.Type == RecordTypeHeaderTracingData {
		return r.nextTracingData(offset)
	}

	if cap(r.buf) < rlen {
		r.buf = make([]byte, rlen)
	}
	buf := r.buf[:rlen]
	if _, err := io.ReadFull(r.sr, buf); err != nil {
		r.err = &Truncated{"record body", int64(rlen), 0}
		return false
	}
	bd := &bufDecoder{buf, order}

	var common RecordCommon
	common.Offset = offset
	if r.f.sampleIDAll && hdr.Type != RecordTypeSample && hdr.Type < recordTypeUserStart {
		r.parseCommon(bd, &common)
	}

	switch hdr.Type {
	case RecordTypeMmap:
		r.Record = r.parseMmap(bd, &hdr, common, false)
	case recordTypeMmap2:
		r.Record = r.parseMmap(bd, &hdr, common, true)
	case RecordTypeLost:
		r.Record = r.parseLost(bd, common)
	case RecordTypeComm:
		r.Record = r.parseComm(bd, &hdr, common)
	case RecordTypeExit:
		r.Record = r.parseExit(bd, common)
	case RecordTypeThrottle:
		r.Record = r.parseThrottle(bd, common, true)
	case RecordTypeUnthrottle:
		r.Record = r.parseThrottle(bd, common, false)
	case RecordTypeFork:
		r.Record = r.parseFork(bd, common)
	case RecordTypeSample:
		r.Record = r.parseSample(bd, &hdr, common)
	case RecordTypeAux:
		r.Record = r.parseAux(bd, common)
	case RecordTypeItraceStart:
		r.Record = &RecordItraceStart{common}
	case RecordTypeLostSamples:
		r.Record = &RecordLostSamples{common, bd.u64()}
	case RecordTypeSwitch:
		r.Record = &RecordSwitch{common, hdr.Misc&recordMiscSwitchOut != 0}
	case RecordTypeSwitchCPUWide:
		r.Record = r.parseSwitchCPUWide(bd, &hdr, common)
	case RecordTypeNamespaces:
		r.Record = r.parseNamespaces(bd, common)
	case RecordTypeKsymbol:
		r.Record = r.parseKsymbol(bd, common)
	case RecordTypeBPFEvent:
		r.Record = r.parseBPFEvent(bd, common)
	case RecordTypeCGroup:
		r.Record = r.parseCGroup(bd, common)
	case RecordTypeTextPoke:
		r.Record = r.parseTextPoke(bd, common)
	case RecordTypeAuxOutputHardwareID:
		r.Record = &RecordAuxOutputHardwareID{common, bd.u64()}
	case RecordTypeAuxtraceInfo:
		r.Record = r.parseAuxtraceInfo(bd, &hdr, common)
	case RecordTypeAuxtrace:
		r.Record = r.parseAuxtrace(bd, &hdr, common)
	case RecordTypeAuxtraceError:
		r.Record = r.parseAuxtraceError(bd, common)
	case RecordTypeThreadMap:
		r.Record = r.parseThreadMap(bd, common)
	case RecordTypeStatConfig:
		r.Record = r.parseStatConfig(bd, common)
	case RecordTypeStat:
		r.Record = r.parseStat(bd, common)
	case RecordTypeStatRound:
		r.Record = &RecordStatRound{common, bd.u64() == 1, bd.u64()}
	case RecordTypeTimeConv:
		r.Record = r.parseTimeConv(bd, &hdr, common)
	case RecordTypeFinishedRound:
		r.Record = &RecordFinishedRound{common}
	case RecordTypeHeaderAttr:
		r.Record = r.parseHeaderAttr(bd, &hdr, common)
	case RecordTypeHeaderEventType:
		r.Record = &RecordHeaderEventType{common, append([]byte(nil), bd.buf...)}
	case RecordTypeHeaderBuildID:
		r.Record = r.parseHeaderBuildID(bd, &hdr, common)
	case RecordTypeHeaderFeature:
		r.Record = r.parseHeaderFeature(bd, common)
	default:
		r.Record = &RecordUnknown{common, hdr.Type, append([]byte(nil), bd.buf...)}
	}

	if r.err != nil {
		return false
	}
	return true
}

// nextTracingData handles RecordTypeHeaderTracingData's two-part
// payload: a uint32 size prefix (not counted in hdr.Size) followed by
// that many bytes of ftrace metadata.
func (r *Records) nextTracingData(offset int64) bool {
	var szBuf [4]byte
	if _, err := io.ReadFull(r.sr, szBuf[:]); err != nil {
		r.err = &Truncated{"tracing_data size", 4, 0}
		return false
	}
	size := r.f.order.Uint32(szBuf[:])
	data := make([]byte, size)
	if _, err := io.ReadFull(r.sr, data); err != nil {
		r.err = &Truncated{"tracing_data payload", int64(size), 0}
		return false
	}
	r.offset += 4 + int64(size)
	r.Record = &RecordHeaderTracingData{RecordCommon: RecordCommon{Offset: offset}, Size: uint64(size), Data: data}
	return true
}

func (r *Records) getAttr(id attrID) *EventAttr {
	if attr, ok := r.f.idToAttr[id]; ok {
		return attr
	}
	if len(r.f.attrs) == 1 {
		return r.f.attrs[0]
	}
	r.err = &UnknownID{id}
	return nil
}

// parseCommon decodes the sample_id trailer appended to non-SAMPLE
// kernel records when EventFlagSampleIDAll is set (spec.md 4.2). Since
// the ID field's position within the trailer cannot be resolved until
// the attribute is known, and the attribute cannot be resolved until
// the ID is read, this uses the shared codec's otherIDBytePos (the same
// for every attribute) directly against the end of bd's buffer, then
// decodes the trailer with the resolved attribute's own SampleFormat.
func (r *Records) parseCommon(bd *bufDecoder, o *RecordCommon) {
	c := r.f.sampleCodec
	if c.otherIDBytePos == -1 {
		o.ID = 0
	} else {
		pos := len(bd.buf) + c.otherIDBytePos
		if pos < 0 || pos+8 > len(bd.buf) {
			return
		}
		o.ID = attrID(bd.order.Uint64(bd.buf[pos:]))
	}
	o.EventAttr = r.getAttr(o.ID)
	if o.EventAttr == nil {
		return
	}
	newSampleInfoCodec(o.EventAttr.SampleFormat).decodeTrailer(bd.buf, bd.order, o)
}

// mmap2BuildIDBytes is the fixed size of the build_id array in the
// MMAP2 record's build-id union (struct mmap2_event's build_id[20]).
// The union is 24 bytes in both branches: maj+min+ino+ino_generation
// (4+4+8+8) without a build ID, or a 1-byte size, 3 bytes of padding
// and build_id[20] with one. A declared size larger than 20 bytes (not
// possible for the kernel's own SHA-1 IDs) is truncated to 20.
const mmap2BuildIDBytes = 20

func (r *Records) parseMmap(bd *bufDecoder, hdr *recordHeader, common RecordCommon, v2 bool) Record {
	o := &RecordMmap{RecordCommon: common}
	o.Format |= SampleFormatTID
	o.Data = hdr.Misc&recordMiscMmapData != 0
	o.CPUMode = CPUMode(hdr.Misc & recordMiscCPUModeMask)

	o.PID, o.TID = int(bd.i32()), int(bd.i32())
	o.Addr, o.Len, o.FileOffset = bd.u64(), bd.u64(), bd.u64()
	if v2 {
		if hdr.Misc&recordMiscMmapBuildID != 0 {
			n := int(bd.u8())
			bd.skip(3)
			if n > mmap2BuildIDBytes {
				n = mmap2BuildIDBytes
			}
			o.BuildID = append([]byte(nil), bd.buf[:n]...)
			bd.skip(mmap2BuildIDBytes)
		} else {
			o.Major, o.Minor = bd.u32(), bd.u32()
			o.Ino, o.InoGeneration = bd.u64(), bd.u64()
		}
		o.Prot, o.Flags = bd.u32(), bd.u32()
	}
	o.Filename = bd.cstring()
	return o
}

func (r *Records) parseLost(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordLost{RecordCommon: common}
	o.Format |= SampleFormatID
	o.LostID = attrID(bd.u64())
	o.EventAttr = r.getAttr(o.LostID)
	o.NumLost = bd.u64()
	return o
}

func (r *Records) parseComm(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordComm{RecordCommon: common}
	o.Format |= SampleFormatTID
	o.Exec = hdr.Misc&recordMiscCommExec != 0
	o.PID, o.TID = int(bd.i32()), int(bd.i32())
	o.Comm = bd.cstring()
	return o
}

func (r *Records) parseExit(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordExit{RecordCommon: common}
	o.Format |= SampleFormatTID | SampleFormatTime
	o.PID, o.PPID = int(bd.i32()), int(bd.i32())
	o.TID, o.PTID = int(bd.i32()), int(bd.i32())
	o.Time = bd.u64()
	return o
}

func (r *Records) parseThrottle(bd *bufDecoder, common RecordCommon, enable bool) Record {
	o := &RecordThrottle{RecordCommon: common, Enable: enable}
	o.Format |= SampleFormatTime | SampleFormatID | SampleFormatStreamID
	o.Time = bd.u64()
	id := attrID(bd.u64())
	if r.f.idToAttr[id] == nil && r.f.idToAttr[0] != nil {
		o.EventAttr = r.f.idToAttr[0]
	} else {
		o.EventAttr = r.getAttr(id)
	}
	o.StreamID = bd.u64()
	o.Stream = o.StreamID
	return o
}

func (r *Records) parseFork(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordFork{RecordCommon: common}
	o.Format |= SampleFormatTID | SampleFormatTime
	o.PID, o.PPID = int(bd.i32()), int(bd.i32())
	o.TID, o.PTID = int(bd.i32()), int(bd.i32())
	o.Time = bd.u64()
	return o
}

func (r *Records) parseAux(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordAux{RecordCommon: common}
	o.AuxOffset, o.AuxSize = bd.u64(), bd.u64()
	o.Flags = AuxFlags(bd.u64())
	return o
}

func (r *Records) parseSwitchCPUWide(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordSwitchCPUWide{RecordCommon: common}
	o.Out = hdr.Misc&recordMiscSwitchOut != 0
	o.SwitchPID, o.SwitchTID = int(bd.i32()), int(bd.i32())
	return o
}

func (r *Records) parseNamespaces(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordNamespaces{RecordCommon: common}
	o.Format |= SampleFormatTID
	o.PID, o.TID = int(bd.i32()), int(bd.i32())
	n := bd.u64()
	o.Namespaces = make([]Namespace, n)
	for i := range o.Namespaces {
		o.Namespaces[i] = Namespace{Dev: bd.u64(), Inode: bd.u64()}
	}
	return o
}

func (r *Records) parseKsymbol(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordKsymbol{RecordCommon: common}
	o.Addr = bd.u64()
	o.Len = bd.u32()
	o.Ktype = KsymbolType(bd.u16())
	o.Flags = KsymbolFlags(bd.u16())
	bd.skip(4) // reserved
	o.Name = bd.cstring()
	return o
}

func (r *Records) parseBPFEvent(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordBPFEvent{RecordCommon: common}
	o.BPFType = BPFEventType(bd.u16())
	o.Flags = bd.u16()
	o.ID = bd.u32()
	bd.bytes(o.Tag[:])
	return o
}

func (r *Records) parseCGroup(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordCGroup{RecordCommon: common}
	o.CGroupID = bd.u64()
	o.Path = bd.cstring()
	return o
}

func (r *Records) parseTextPoke(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordTextPoke{RecordCommon: common}
	o.Addr = bd.u64()
	oldLen := bd.u16()
	newLen := bd.u16()
	o.OldData = append([]byte(nil), bd.buf[:oldLen]...)
	bd.skip(int(oldLen))
	o.NewData = append([]byte(nil), bd.buf[:newLen]...)
	bd.skip(int(newLen))
	return o
}

func (r *Records) parseAuxtraceInfo(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordAuxtraceInfo{RecordCommon: common}
	o.PMUType = bd.u32()
	bd.skip(4) // reserved
	n := len(bd.buf) / 8
	o.Priv = make([]uint64, n)
	bd.u64s(o.Priv)
	return o
}

func (r *Records) parseAuxtrace(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordAuxtrace{RecordCommon: common}
	o.AuxSize = bd.u64()
	o.AuxOff = bd.u64()
	o.Ref = bd.u64()
	o.Idx = bd.u32()
	o.AuxTID = int(bd.i32())
	o.AuxCPU = bd.u32()
	bd.skip(4) // reserved
	// The AUX trace data itself is not included in hdr.Size for this
	// record; it immediately follows in the stream and is read by the
	// caller (spec.md 9's Non-goals exclude interpreting it, but the
	// bytes must still be consumed to keep the stream in sync).
	remaining := make([]byte, o.AuxSize)
	if _, err := io.ReadFull(r.sr, remaining); err != nil {
		r.err = &Truncated{"auxtrace data", int64(o.AuxSize), 0}
		return o
	}
	r.offset += int64(o.AuxSize)
	o.Data = remaining
	return o
}

func (r *Records) parseAuxtraceError(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordAuxtraceError{RecordCommon: common}
	o.ErrorType = bd.u32()
	o.Code = bd.u32()
	o.ErrCPU = bd.u32()
	o.ErrPID = int(bd.i32())
	o.ErrTID = int(bd.i32())
	o.IP = bd.u64()
	if bd.ensure(maxAuxtraceErrorMsg) {
		o.Message = bd.fixedString(maxAuxtraceErrorMsg)
	}
	return o
}

func (r *Records) parseThreadMap(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordThreadMap{RecordCommon: common}
	n := bd.u64()
	o.Entries = make([]ThreadMapEntry, n)
	for i := range o.Entries {
		o.Entries[i].ThreadPID = bd.u64()
		o.Entries[i].Comm = bd.fixedString(16)
	}
	return o
}

func (r *Records) parseStatConfig(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordStatConfig{RecordCommon: common, Entries: map[uint64]uint64{}}
	n := bd.u64()
	for i := uint64(0); i < n; i++ {
		k := bd.u64()
		v := bd.u64()
		o.Entries[k] = v
	}
	return o
}

func (r *Records) parseStat(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordStat{RecordCommon: common}
	o.StatID = attrID(bd.u64())
	o.StatCPU = bd.u32()
	o.Thread = bd.u32()
	o.Value = bd.u64()
	o.Enabled = bd.u64()
	o.Running = bd.u64()
	o.EventAttr = r.getAttr(o.StatID)
	return o
}

func (r *Records) parseTimeConv(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordTimeConv{RecordCommon: common}
	o.TimeShift = bd.u64()
	o.TimeMult = bd.u64()
	o.TimeZero = bd.u64()
	if len(bd.buf) >= 24 {
		o.Extended = true
		o.TimeCycles = bd.u64()
		o.TimeMask = bd.u64()
		flags := bd.u8()
		o.CapUserTimeZero = flags&0x1 != 0
		o.CapUserTimeShort = flags&0x2 != 0
	}
	return o
}

func (r *Records) parseHeaderAttr(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordHeaderAttr{RecordCommon: common}
	raw := bd.buf[:eventAttrVNSize]
	bd.skip(eventAttrVNSize)
	attr, err := decodeEventAttr(raw, bd.order)
	if err != nil {
		r.err = err
		return o
	}
	o.Attr = attr
	n := len(bd.buf) / 8
	o.IDs = make([]attrID, n)
	for i := 0; i < n; i++ {
		o.IDs[i] = attrID(bd.u64())
	}
	if err := r.f.registerAttr(&o.Attr, o.IDs); err != nil {
		r.err = err
		return o
	}
	return o
}

func (r *Records) parseHeaderBuildID(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordHeaderBuildID{RecordCommon: common}
	o.BuildCPUMode = CPUMode(hdr.Misc & recordMiscCPUModeMask)
	o.BuildPID = int(bd.i32())
	raw := bd.buf[:20]
	bd.skip(20)
	sz := 20
	n := int(bd.u8()) // build_id_event.size
	bd.skip(3)        // reserved1, reserved2
	if hdr.Misc&recordMiscBuildIDSize != 0 && n < sz {
		sz = n
	}
	o.BuildID = append([]byte(nil), raw[:sz]...)
	o.Filename = bd.cstring()
	return o
}

func (r *Records) parseHeaderFeature(bd *bufDecoder, common RecordCommon) Record {
	o := &RecordHeaderFeature{RecordCommon: common}
	o.Feature = feature(bd.u64())
	o.Data = append([]byte(nil), bd.buf...)
	return o
}

func (r *Records) parseSample(bd *bufDecoder, hdr *recordHeader, common RecordCommon) Record {
	o := &RecordSample{RecordCommon: common}

	c := r.f.sampleCodec
	if c.sampleIDBytePos == -1 {
		o.ID = 0
	} else if c.sampleIDBytePos+8 <= len(bd.buf) {
		o.ID = attrID(bd.order.Uint64(bd.buf[c.sampleIDBytePos:]))
	}
	o.EventAttr = r.getAttr(o.ID)
	if o.EventAttr == nil {
		return o
	}

	o.CPUMode = CPUMode(hdr.Misc & recordMiscCPUModeMask)
	o.ExactIP = hdr.Misc&recordMiscExactIP != 0

	t := o.EventAttr.SampleFormat
	o.Format = t
	bd.u64If(t&SampleFormatIdentifier != 0)
	o.IP = bd.u64If(t&SampleFormatIP != 0)
	o.PID = int(bd.i32If(t&SampleFormatTID != 0))
	o.TID = int(bd.i32If(t&SampleFormatTID != 0))
	o.Time = bd.u64If(t&SampleFormatTime != 0)
	o.Addr = bd.u64If(t&SampleFormatAddr != 0)
	bd.u64If(t&SampleFormatID != 0)
	o.StreamID = bd.u64If(t&SampleFormatStreamID != 0)
	o.CPU = bd.u32If(t&SampleFormatCPU != 0)
	o.Res = bd.u32If(t&SampleFormatCPU != 0)
	o.Period = bd.u64If(t&SampleFormatPeriod != 0)

	if t&SampleFormatRead != 0 {
		o.SampleRead = r.parseReadFormat(bd, o.EventAttr.ReadFormat)
	}

	if t&SampleFormatCallchain != 0 {
		n := int(bd.u64())
		o.Callchain = make([]uint64, n)
		bd.u64s(o.Callchain)
	} else {
		o.Callchain = nil
	}

	if t&SampleFormatRaw != 0 {
		n := int(bd.u32())
		o.Raw = append([]byte(nil), bd.buf[:n]...)
		bd.skip(n)
	} else {
		o.Raw = nil
	}

	if t&SampleFormatBranchStack != 0 {
		if o.EventAttr.BranchSampleType&BranchSampleHWIndex != 0 {
			o.BranchHWIndex = int64(bd.u64())
		}
		n := int(bd.u64())
		o.BranchStack = make([]BranchRecord, n)
		for i := range o.BranchStack {
			o.BranchStack[i].From = bd.u64()
			o.BranchStack[i].To = bd.u64()
			flags := bd.u64()
			if r.f.swapBranchFlags {
				flags = swapBranchFlags(flags)
			}
			o.BranchStack[i].Flags = BranchFlags(flags & 0xf)
			o.BranchStack[i].Cycles = uint16((flags >> 4) & 0xffff)
			o.BranchStack[i].Type = BranchType((flags >> 20) & 0xf)
		}
	}

	if t&SampleFormatRegsUser != 0 {
		o.RegsUserABI = SampleRegsABI(bd.u64())
		n := weight(o.EventAttr.SampleRegsUser)
		o.RegsUser = make([]uint64, n)
		bd.u64s(o.RegsUser)
	}

	if t&SampleFormatStackUser != 0 {
		size := int(bd.u64())
		o.StackUser = append([]byte(nil), bd.buf[:size]...)
		bd.skip(size)
		if size > 0 {
			o.StackUserDynSize = bd.u64()
		}
	} else {
		o.StackUser = nil
		o.StackUserDynSize = 0
	}

	o.Weight = bd.u64If(t&SampleFormatWeight != 0 && t&SampleFormatWeightStruct == 0)
	if t&SampleFormatWeightStruct != 0 {
		w := bd.u64()
		o.Weights = Weights{Var1: uint32(w), Var2: uint16(w >> 32), Var3: uint16(w >> 48)}
		o.Weight = uint64(o.Weights.Var1)
	}

	if t&SampleFormatDataSrc != 0 {
		o.DataSrc = decodeDataSrc(bd.u64())
	}

	if t&SampleFormatTransaction != 0 {
		tx := bd.u64()
		o.Transaction = Transaction(tx & 0xffffffff)
		o.AbortCode = uint32(tx >> 32)
	}

	if t&SampleFormatRegsIntr != 0 {
		o.RegsIntrABI = SampleRegsABI(bd.u64())
		n := weight(o.EventAttr.SampleRegsIntr)
		o.RegsIntr = make([]uint64, n)
		bd.u64s(o.RegsIntr)
	}

	o.PhysAddr = bd.u64If(t&SampleFormatPhysAddr != 0)
	o.CGroup = bd.u64If(t&SampleFormatCGroup != 0)
	o.DataPageSize = bd.u64If(t&SampleFormatDataPageSize != 0)
	o.CodePageSize = bd.u64If(t&SampleFormatCodePageSize != 0)

	return o
}

func (r *Records) parseReadFormat(bd *bufDecoder, f ReadFormat) []Count {
	n := 1
	if f&ReadFormatGroup != 0 {
		n = int(bd.u64())
	}
	out := make([]Count, n)
	if f&ReadFormatGroup == 0 {
		o := &out[0]
		o.Value = bd.u64()
		o.TimeEnabled = bd.u64If(f&ReadFormatTotalTimeEnabled != 0)
		o.TimeRunning = bd.u64If(f&ReadFormatTotalTimeRunning != 0)
		if f&ReadFormatID != 0 {
			o.ID = attrID(bd.u64())
		}
	} else {
		for i := range out {
			o := &out[i]
			o.Value = bd.u64()
			o.TimeEnabled = bd.u64If(f&ReadFormatTotalTimeEnabled != 0)
			o.TimeRunning = bd.u64If(f&ReadFormatTotalTimeRunning != 0)
			if f&ReadFormatID != 0 {
				o.ID = attrID(bd.u64())
			}
		}
	}
	return out
}
