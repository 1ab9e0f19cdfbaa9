// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import "encoding/binary"

// decodeEventAttr decodes one on-disk perf_event_attr record. raw must
// be at least eventAttrVNSize bytes (bytes beyond that are ignored):
// shorter on-disk records
// (older ABI versions) are zero-padded up to this size by the caller
// before decoding, per spec.md 4.4's "upgrade by zero-padding" rule, so
// unset newer fields simply decode as zero.
func decodeEventAttr(raw []byte, order binary.ByteOrder) (EventAttr, error) {
	bd := &bufDecoder{raw, order}

	typ := EventType(bd.u32())
	_ = bd.u32() // on-disk Size; caller already used this to decide padding
	config := bd.u64()
	periodOrFreq := bd.u64()
	sampleFormat := SampleFormat(bd.u64())
	readFormat := ReadFormat(bd.u64())
	flags := EventFlags(bd.u64())
	wakeupEventsOrWatermark := bd.u32()
	bpType := bd.u32()
	bpAddrOrConfig1 := bd.u64()
	bpLenOrConfig2 := bd.u64()
	branchSampleType := BranchSampleType(bd.u64())
	sampleRegsUser := bd.u64()
	sampleStackUser := bd.u32()
	_ = bd.i32() // ClockID; not currently surfaced
	sampleRegsIntr := bd.u64()
	auxWatermark := bd.u32()
	sampleMaxStack := bd.u16()
	_ = bd.u16() // Pad
	_ = bd.u32() // AuxSampleSize
	_ = bd.u32() // Pad2
	_ = bd.u64() // SigData

	a := EventAttr{
		SamplePeriod:     0,
		SampleFreq:       0,
		SampleFormat:     sampleFormat,
		ReadFormat:       readFormat,
		Flags:            flags,
		Precise:          EventPrecision((flags & eventFlagPreciseMask) >> eventFlagPreciseShift),
		WakeupEvents:     0,
		WakeupWatermark:  0,
		BranchSampleType: branchSampleType,
		SampleRegsUser:   sampleRegsUser,
		SampleStackUser:  sampleStackUser,
		SampleRegsIntr:   sampleRegsIntr,
		AuxWatermark:     auxWatermark,
		SampleMaxStack:   sampleMaxStack,
	}
	_ = bpType
	_ = bpAddrOrConfig1
	_ = bpLenOrConfig2

	if flags&EventFlagFreq != 0 {
		a.SampleFreq = periodOrFreq
	} else {
		a.SamplePeriod = periodOrFreq
	}
	if flags&EventFlagWakeupWatermark != 0 {
		a.WakeupWatermark = wakeupEventsOrWatermark
	} else {
		a.WakeupEvents = wakeupEventsOrWatermark
	}

	g := EventGeneric{Type: typ, ID: config}
	if typ == EventTypeBreakpoint {
		g.ID = uint64(bpType)
		g.Config = []uint64{bpAddrOrConfig1, bpLenOrConfig2}
	} else if bpLenOrConfig2 != 0 {
		g.Config = []uint64{bpAddrOrConfig1, bpLenOrConfig2}
	}
	a.Event = g.Decode()

	return a, nil
}

const (
	eventFlagPreciseShift = 15
	eventFlagPreciseMask  = EventFlags(0x3) << eventFlagPreciseShift
)

// encodeEventAttr appends the full eventAttrVNSize-byte on-disk
// encoding of a to be, the inverse of decodeEventAttr.
func encodeEventAttr(be *bufEncoder, a *EventAttr) {
	g := a.Event.Generic()

	var typ EventType
	var config uint64
	var bpType uint32
	var bpAddr, bpLen uint64
	if g.Type == EventTypeBreakpoint {
		typ = EventTypeBreakpoint
		bpType = uint32(g.ID)
		if len(g.Config) == 2 {
			bpAddr, bpLen = g.Config[0], g.Config[1]
		}
	} else {
		typ = g.Type
		config = g.ID
		if len(g.Config) == 2 {
			bpAddr, bpLen = g.Config[0], g.Config[1]
		}
	}

	periodOrFreq := a.SamplePeriod
	if a.Flags&EventFlagFreq != 0 {
		periodOrFreq = a.SampleFreq
	}
	wakeupEventsOrWatermark := a.WakeupEvents
	if a.Flags&EventFlagWakeupWatermark != 0 {
		wakeupEventsOrWatermark = a.WakeupWatermark
	}

	flags := a.Flags &^ eventFlagPreciseMask
	flags |= EventFlags(a.Precise) << eventFlagPreciseShift

	be.u32(uint32(typ))
	be.u32(uint32(eventAttrVNSize))
	be.u64(config)
	be.u64(periodOrFreq)
	be.u64(uint64(a.SampleFormat))
	be.u64(uint64(a.ReadFormat))
	be.u64(uint64(flags))
	be.u32(wakeupEventsOrWatermark)
	be.u32(bpType)
	be.u64(bpAddr)
	be.u64(bpLen)
	be.u64(uint64(a.BranchSampleType))
	be.u64(a.SampleRegsUser)
	be.u32(a.SampleStackUser)
	be.i32(0) // ClockID
	be.u64(a.SampleRegsIntr)
	be.u32(a.AuxWatermark)
	be.u16(a.SampleMaxStack)
	be.u16(0) // Pad
	be.u32(0) // AuxSampleSize
	be.u32(0) // Pad2
	be.u64(0) // SigData
}
