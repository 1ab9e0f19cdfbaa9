// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"io"
)

const numFeatureBits = 256

// magicLE and magicBE are the two 8-byte magic values a normal-mode
// perf.data file can start with: the canonical little-endian tag, and
// the same tag with its bytes reversed (written by a big-endian host).
// Any other magic, including that of the older v1 format, is rejected
// as Malformed.
const (
	magicLE = "PERFILE2"
	magicBE = "2ELIFREP"
)

// perf_pipe_header from tools/perf/util/header.h. Only the magic and
// its own size are present; everything else arrives inline as
// synthetic records.
type pipedHeader struct {
	Magic [8]byte
	Size  uint64
}

// perf_file_header from tools/perf/util/header.h
type fileHeader struct {
	Magic    [8]byte
	Size     uint64      // Size of fileHeader on disk
	AttrSize uint64      // Size of fileAttr on disk
	Attrs    fileSection // Array of fileAttr
	Data     fileSection // Alternating recordHeader and record
	_        fileSection // event_types; ignored in v2

	Features [numFeatureBits / 64]uint64 // Bitmap of feature
}

const (
	pipedHeaderSize = 16  // sizeof(pipedHeader)
	fullHeaderSize  = 104 // sizeof(fileHeader)
)

func (h *fileHeader) hasFeature(f feature) bool {
	return h.Features[f/64]&(1<<(uint(f)%64)) != 0
}

func (h *fileHeader) setFeature(f feature) {
	h.Features[f/64] |= 1 << (uint(f) % 64)
}

func (h *fileHeader) featureCount() int {
	n := 0
	for _, word := range h.Features {
		for word != 0 {
			n += int(word & 1)
			word >>= 1
		}
	}
	return n
}

// perf_file_section from tools/perf/util/header.h
type fileSection struct {
	Offset, Size uint64
}

func (s fileSection) sectionReader(r io.ReaderAt) *io.SectionReader {
	return io.NewSectionReader(r, int64(s.Offset), int64(s.Size))
}

func (s fileSection) data(r io.ReaderAt) ([]byte, error) {
	out := make([]byte, s.Size)
	n, err := r.ReadAt(out, int64(s.Offset))
	if n == len(out) {
		return out, nil
	}
	return nil, err
}

// HEADER_* enum from tools/perf/util/header.h
type feature int

const (
	featureReserved feature = iota // always cleared
	featureTracingData
	featureBuildID

	featureHostname
	featureOSRelease
	featureVersion
	featureArch
	featureNrCpus
	featureCPUDesc
	featureCPUID
	featureTotalMem
	featureCmdline
	featureEventDesc
	featureCPUTopology
	featureNUMATopology
	featureBranchStack
	featurePMUMappings
	featureGroupDesc
)

// perf_file_attr from tools/perf/util/header.c
type fileAttr struct {
	Attr EventAttr
	IDs  fileSection // array of attrID, one per core/thread
}

// eventAttrV0 is on-disk version 0 of the perf_event_attr structure.
// Later versions extended this with additional fields, but the header
// is always the same.
type eventAttrV0 struct {
	Type                    EventType
	Size                    uint32
	Config                  uint64
	SamplePeriodOrFreq      uint64
	SampleFormat            SampleFormat
	ReadFormat              ReadFormat
	Flags                   EventFlags
	WakeupEventsOrWatermark uint32
	BPType                  uint32
	// BPAddrOrConfig1 can also contain kprobe_func or uprobe_path,
	// but these are just pointers to strings used by the
	// perf_event_open API, so are not meaningful in perf files.
	BPAddrOrConfig1 uint64
}

// eventAttrVN is the on-disk latest version of the perf_event_attr
// structure (currently version 7).
type eventAttrVN struct {
	eventAttrV0

	// ABI v1
	//
	// BPLenOrConfig2 can also contain kprobe_addr or
	// probe_offset, which are used in conjunction with
	// kprobe_func and uprobe_path (above).
	BPLenOrConfig2 uint64

	// ABI v2
	BranchSampleType BranchSampleType

	// ABI v3
	SampleRegsUser  uint64
	SampleStackUser uint32
	ClockID         int32

	// ABI v4
	SampleRegsIntr uint64

	// ABI v5
	AuxWatermark   uint32
	SampleMaxStack uint16 // Max frame pointers in a callchain
	Pad            uint16 // Align to uint64

	// ABI v6
	AuxSampleSize uint32 // Size of aux samples to include in SampleFormatAux.
	Pad2          uint32 // Align to uint64

	// ABI v7
	SigData uint64 // User-provided data passed in sigcontext to SIGTRAP.
}

// eventAttrVNSize is the on-disk size of the current ABI version. Older
// captures may write a shorter eventAttrV0-shaped record (or something
// in between); the reader zero-pads these up to this size before
// reinterpreting them, per the "upgrade by zero-padding" rule in
// spec.md 4.4.
const eventAttrVNSize = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 4 + 4 + 8 +
	8 + 8 + 8 + 4 + 4 + 8 + 4 + 2 + 2 + 4 + 4 + 8 // == 128

type attrID uint64

// Event describes a specific performance monitoring event.
type Event interface {
	// Generic returns the generic representation of this Event.
	Generic() EventGeneric
}

// An EventType is a general class of performance event.
//
// This corresponds to the perf_type_id enum from
// include/uapi/linux/perf_event.h
type EventType uint32

const (
	EventTypeHardware EventType = iota
	EventTypeSoftware
	EventTypeTracepoint
	EventTypeHWCache
	EventTypeRaw
	EventTypeBreakpoint
)

// An EventID combined with an EventType describes a specific event.
type EventID uint64

// EventAttr describes an event and how that event should be recorded.
//
// This corresponds to the perf_event_attr struct from
// include/uapi/linux/perf_event.h
type EventAttr struct {
	// Event describes the event that will be (or was) counted or
	// sampled.
	Event Event

	// SamplePeriod, if non-zero, is the approximate number of
	// events between each sample.
	SamplePeriod uint64

	// SampleFreq, if non-zero, is the approximate number of
	// samples to record per second per core.
	SampleFreq uint64

	// The format of RecordSamples
	SampleFormat SampleFormat

	// The format of SampleRead
	ReadFormat ReadFormat

	Flags EventFlags

	// Precise indicates the precision of instruction pointers
	// recorded by this event.
	Precise EventPrecision

	// WakeupEvents specifies to wake up every WakeupEvents events.
	WakeupEvents uint32
	// WakeupWatermark specifies to wake up every WakeupWatermark
	// bytes.
	WakeupWatermark uint32

	// BranchSampleType specifies the types of branches to record
	// in the branch stack.
	BranchSampleType BranchSampleType

	// SampleRegsUser is a bitmask of user-space registers
	// captured at each sample in RecordSample.RegsUser.
	SampleRegsUser uint64

	// Size of user stack to dump on samples
	SampleStackUser uint32

	// SampleRegsIntr is a bitmask of registers captured at each
	// sample in RecordSample.RegsIntr.
	SampleRegsIntr uint64

	// AuxWatermark is the watermark for the AUX area in bytes.
	AuxWatermark uint32

	// SampleMaxStack is the maximum number of frame pointers in a
	// callchain.
	SampleMaxStack uint16

	// ids lists the attr IDs (core/thread identifiers) that route
	// samples to this attribute. Populated by the reader from the
	// attribute's IDs section; Writer uses it to emit that section.
	ids []attrID
}

// A SampleFormat is a bitmask of the fields recorded by a sample.
//
// This corresponds to the perf_event_sample_format enum from
// include/uapi/linux/perf_event.h
type SampleFormat uint64

const (
	SampleFormatIP SampleFormat = 1 << iota
	SampleFormatTID
	SampleFormatTime
	SampleFormatAddr
	SampleFormatRead
	SampleFormatCallchain
	SampleFormatID
	SampleFormatCPU
	SampleFormatPeriod
	SampleFormatStreamID
	SampleFormatRaw
	SampleFormatBranchStack
	SampleFormatRegsUser
	SampleFormatStackUser
	SampleFormatWeight
	SampleFormatDataSrc
	SampleFormatIdentifier
	SampleFormatTransaction
	SampleFormatRegsIntr
	SampleFormatPhysAddr
	SampleFormatAux
	SampleFormatCGroup
	SampleFormatDataPageSize
	SampleFormatCodePageSize
	SampleFormatWeightStruct
)

// ReadFormat is a bitmask of the fields recorded in the SampleRead
// field(s) of a sample.
type ReadFormat uint64

const (
	ReadFormatTotalTimeEnabled ReadFormat = 1 << iota
	ReadFormatTotalTimeRunning
	ReadFormatID
	ReadFormatGroup
)

// EventFlags is a bitmask of boolean properties of an event.
type EventFlags uint64

const (
	EventFlagDisabled EventFlags = 1 << iota
	EventFlagInherit
	EventFlagPinned
	EventFlagExclusive
	EventFlagExcludeUser
	EventFlagExcludeKernel
	EventFlagExcludeHypervisor
	EventFlagExcludeIdle
	EventFlagMmap
	EventFlagComm
	EventFlagFreq
	EventFlagInheritStat
	EventFlagEnableOnExec
	EventFlagTask
	EventFlagWakeupWatermark

	EventFlagMmapData EventFlags = 1 << (2 + iota)
	EventFlagSampleIDAll
	EventFlagExcludeHost
	EventFlagExcludeGuest
	EventFlagExcludeCallchainKernel
	EventFlagExcludeCallchainUser
	EventFlagMmapInodeData
	EventFlagCommExec
	EventFlagClockID
	EventFlagContextSwitch
	EventFlagWriteBackward
	EventFlagNamespaces
	EventFlagKsymbol
	EventFlagAuxOutput
	EventFlagCGroup
	EventFlagTextPoke
	EventFlagBuildID
	EventFlagInheritThread
	EventFlagRemoveOnExec
	EventFlagSigtrap
)

// An EventPrecision indicates the precision of instruction pointers
// recorded by an event.
type EventPrecision int

const (
	EventPrecisionArbitrarySkid EventPrecision = iota
	EventPrecisionConstantSkid
	EventPrecisionTryZeroSkid
	EventPrecisionZeroSkip
)

// BranchSampleType is a bit-field of the types of branches to record
// in the branch stack.
type BranchSampleType uint64

const (
	BranchSampleUser   BranchSampleType = 1 << iota // User branches
	BranchSampleKernel                              // Kernel branches
	BranchSampleHV                                  // Hypervisor branches

	BranchSampleAny       // Any branch types
	BranchSampleAnyCall   // Any call branch
	BranchSampleAnyReturn // Any return branch
	BranchSampleIndCall   // Indirect calls
	BranchSampleAbortTX   // Transaction aborts
	BranchSampleInTX      // In transaction
	BranchSampleNoTX      // Not in transaction
	BranchSampleCond      // Conditional branches

	BranchSampleCallStack // Call/ret stack
	BranchSampleIndJump   // Indirect jumps
	BranchSampleCall      // Direct call

	BranchSampleNoFlags  // Don't set BranchRecord.Flags
	BranchSampleNoCycles // Don't set BranchRecord.Cycles
	BranchSampleTypeSave // Do set BranchRecord.Type
	BranchSampleHWIndex  // Do set RecordSample.BranchHWIndex
)

// perf_event_header from include/uapi/linux/perf_event.h
type recordHeader struct {
	Type RecordType
	Misc recordMisc
	Size uint16
}

// A RecordType indicates the type of a record in a profile.
type RecordType uint32

const (
	RecordTypeMmap RecordType = 1 + iota
	RecordTypeLost
	RecordTypeComm
	RecordTypeExit
	RecordTypeThrottle
	RecordTypeUnthrottle
	RecordTypeFork
	RecordTypeRead
	RecordTypeSample
	recordTypeMmap2 // internal extended RecordTypeMmap
	RecordTypeAux
	RecordTypeItraceStart
	RecordTypeLostSamples
	RecordTypeSwitch
	RecordTypeSwitchCPUWide
	RecordTypeNamespaces
	RecordTypeKsymbol
	RecordTypeBPFEvent
	RecordTypeCGroup
	RecordTypeTextPoke
	RecordTypeAuxOutputHardwareID

	recordTypeUserStart RecordType = 64
)

// perf_user_event_type in tools/perf/util/event.h. These never appear
// in a normal-mode file's data section; in piped mode they're
// interleaved with kernel records and supply what the feature section
// index would otherwise carry.
const (
	RecordTypeHeaderAttr RecordType = recordTypeUserStart + iota
	recordTypeEventType             // deprecated
	RecordTypeHeaderTracingData
	RecordTypeHeaderBuildID
	RecordTypeFinishedRound
	recordTypeIDIndex
	RecordTypeAuxtraceInfo
	RecordTypeAuxtrace
	RecordTypeAuxtraceError
	RecordTypeThreadMap
	recordTypeCPUMap
	RecordTypeStatConfig
	RecordTypeStat
	RecordTypeStatRound
	recordTypeEventUpdate
	RecordTypeTimeConv
	RecordTypeHeaderFeature
	RecordTypeHeaderEventType // piped-mode synthesized legacy event_type table entry
)

// PERF_RECORD_MISC_* from include/uapi/linux/perf_event.h
type recordMisc uint16

const (
	recordMiscCPUModeMask         recordMisc = 7
	recordMiscProcMapParseTimeout            = 1 << 12
	recordMiscMmapData                       = 1 << 13 // RecordTypeMmap* events
	recordMiscCommExec                       = 1 << 13 // RecordTypeComm events
	recordMiscForkExec                       = 1 << 13 // RecordTypeFork events (perf tool internal)
	recordMiscSwitchOut                      = 1 << 13 // RecordTypeSwitch* events

	// recordMiscExactIP applies to RecordTypeSample records.
	recordMiscExactIP = 1 << 14

	// recordMiscSwitchOutPreempt applies to RecordTypeSwitch* records.
	recordMiscSwitchOutPreempt = 1 << 14

	// recordMiscMmapBuildID applies to recordTypeMmap2 records.
	recordMiscMmapBuildID = 1 << 14

	// recordMiscBuildIDSize applies to build_id_event records: when
	// set, the event's size field carries the number of meaningful
	// bytes in the 20-byte build ID; otherwise treat it as 20.
	recordMiscBuildIDSize = 1 << 15
)

// A CPUMode indicates the privilege level of a sample or event.
type CPUMode uint16

const (
	CPUModeUnknown CPUMode = iota
	CPUModeKernel
	CPUModeUser
	CPUModeHypervisor
	CPUModeGuestKernel
	CPUModeGuestUser
)

// weight returns the number of set bits in x (popcount).
func weight(x uint64) int {
	x -= (x >> 1) & 0x5555555555555555
	x = (x & 0x3333333333333333) + ((x >> 2) & 0x3333333333333333)
	x = (x + (x >> 4)) & 0x0f0f0f0f0f0f0f0f
	return int((x * 0x0101010101010101) >> 56)
}
