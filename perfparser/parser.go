// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfparser

import (
	"context"
	"sort"

	"github.com/perfdata-go/perfdata/perffile"
	"github.com/sirupsen/logrus"
)

// Config controls Parser's optional passes (spec.md 4.5, 4.6). The
// zero value runs only the mandatory passes: mapping maintenance and
// address resolution.
type Config struct {
	// DeduceHugePages and CombineAdjacentMappings enable the
	// corresponding MappingTable passes, run in that order on every
	// pid once the whole stream has been read. Samples are resolved as
	// they are read, so their DSO fields reflect the mappings as they
	// stood before these passes. DeduceHugePages also combines adjacent
	// mappings of each pid it processes.
	DeduceHugePages         bool
	CombineAdjacentMappings bool

	// Remap enables dense virtual-address renumbering; KernelBase is
	// the quasi-kernel base address mappings are renumbered from.
	Remap      bool
	KernelBase uint64

	// SortByTime stably reorders the output by sample-info time,
	// provided every attribute's SampleFormat includes
	// SampleFormatTime (spec.md 4.4's "size check before sorting");
	// otherwise sorting is silently skipped.
	SortByTime bool

	// ReadMissingBuildIDs enables on-disk build-ID probing through
	// mount namespaces for mappings the profile didn't already carry
	// a build ID for (spec.md 4.6).
	ReadMissingBuildIDs bool
	BuildIDReader       BuildIDReader

	// SampleMappingPercentageThreshold is the minimum fraction (0-1)
	// of samples that must resolve to a mapping; below it Parse
	// returns InsufficientlyMapped. Zero disables the check.
	SampleMappingPercentageThreshold float64

	Log logrus.FieldLogger
}

// Stats aggregates counters propagated across a parse (spec.md 4.6
// step 5).
type Stats struct {
	Samples          int
	SamplesMapped    int
	SamplesAddrHit   int
	BuildIDsResolved int
	Lost             uint64
	Throttled        int
}

// Parser drives a perffile.Records stream, maintaining a MappingTable
// and a BuildIDStore and resolving sample addresses as it goes
// (spec.md 4.6).
type Parser struct {
	cfg     Config
	log     logrus.FieldLogger
	Mapping *MappingTable
	BuildID *perffile.BuildIDStore
	Stats   Stats
}

// NewParser creates a Parser seeded with the file's feature-section
// build IDs, if any.
func NewParser(cfg Config, meta *perffile.FileMeta) *Parser {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	var store *perffile.BuildIDStore
	if meta != nil {
		store = perffile.NewBuildIDStoreFromMeta(meta)
	} else {
		store = perffile.NewBuildIDStore()
	}
	if cfg.BuildIDReader == nil {
		cfg.BuildIDReader = NoBuildIDReader{}
	}
	return &Parser{
		cfg:     cfg,
		log:     log,
		Mapping: NewMappingTable(),
		BuildID: store,
	}
}

// Parse consumes every record from rs, resolving RecordSample IP (and,
// when present, ADDR) fields against the mapping table built up as it
// goes, and returns the records in emission order: wire order, or
// stably sorted by time if Config.SortByTime and every attribute
// records TIME. FINISHED_ROUND records are dropped from the returned
// slice (spec.md 4.6 step 6).
//
// ctx is consulted between records; if it's done, Parse returns
// whatever records it emitted so far along with a Cancelled error.
func (p *Parser) Parse(ctx context.Context, rs *perffile.Records) ([]perffile.Record, error) {
	var out []perffile.Record
	canSort := p.cfg.SortByTime
	pidsTouched := map[int]bool{}

	for rs.Next() {
		select {
		case <-ctx.Done():
			return out, &Cancelled{Err: ctx.Err()}
		default:
		}

		r := rs.Record
		if attr := r.Common().EventAttr; attr != nil && attr.SampleFormat&perffile.SampleFormatTime == 0 {
			canSort = false
		}

		switch rec := r.(type) {
		case *perffile.RecordFork:
			p.Mapping.Apply(rec)
		case *perffile.RecordExit:
			p.Mapping.Apply(rec)
		case *perffile.RecordMmap:
			p.applyMmap(rec)
			pidsTouched[rec.PID] = true
		case *perffile.RecordLost:
			p.Stats.Lost += rec.NumLost
		case *perffile.RecordThrottle:
			p.Stats.Throttled++
		case *perffile.RecordFinishedRound:
			continue // dropped from the output sequence (spec.md 4.6 step 6)
		case *perffile.RecordSample:
			p.resolveSample(rec)
		}

		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return out, err
	}

	if p.cfg.DeduceHugePages || p.cfg.CombineAdjacentMappings {
		for pid := range pidsTouched {
			if p.cfg.DeduceHugePages {
				p.Mapping.DeduceHugePages(pid)
			}
			if p.cfg.CombineAdjacentMappings {
				p.Mapping.CombineAdjacent(pid)
			}
		}
	}

	if p.cfg.Remap {
		translate := p.Mapping.Remap(p.cfg.KernelBase)
		for _, r := range out {
			if s, ok := r.(*perffile.RecordSample); ok {
				p.remapSample(s, translate)
			}
		}
	}

	if canSort {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Common().Time < out[j].Common().Time
		})
	}

	if p.cfg.SampleMappingPercentageThreshold > 0 && p.Stats.Samples > 0 {
		frac := float64(p.Stats.SamplesMapped) / float64(p.Stats.Samples)
		if frac < p.cfg.SampleMappingPercentageThreshold {
			return out, &InsufficientlyMapped{
				Mapped:    p.Stats.SamplesMapped,
				Total:     p.Stats.Samples,
				Threshold: p.cfg.SampleMappingPercentageThreshold,
			}
		}
	}

	return out, nil
}

func (p *Parser) applyMmap(rec *perffile.RecordMmap) {
	p.Mapping.Apply(rec)
	p.BuildID.Observe(rec.Filename, rec.CPUMode)
	if len(rec.BuildID) > 0 {
		// First write wins per filename (spec.md 4.6 step 2).
		if _, ok := p.BuildID.Lookup(rec.Filename); !ok {
			p.BuildID.Inject(rec.Filename, perffile.DecodeHex(rec.BuildID))
		}
	}
}

// resolveSample stamps DSO/DataDSO onto rec by looking up its IP (and,
// if present, ADDR) under rec's TID, falling back to PID, then the
// kernel (spec.md 4.6 step 3), resolves each branch-stack entry
// individually (step 4), and optionally probes the filesystem for a
// missing build ID.
func (p *Parser) resolveSample(rec *perffile.RecordSample) {
	p.Stats.Samples++

	if m, off, ok := p.resolveAddr(rec.TID, rec.PID, rec.IP); ok {
		rec.DSO = p.dsoFor(rec.TID, rec.PID, m, off)
		rec.DSOOK = true
		p.Stats.SamplesMapped++
	}

	if rec.Common().Format&perffile.SampleFormatAddr != 0 && rec.Addr != 0 {
		if m, off, ok := p.resolveAddr(rec.TID, rec.PID, rec.Addr); ok {
			rec.DataDSO = p.dsoFor(rec.TID, rec.PID, m, off)
			rec.DataOK = true
			p.Stats.SamplesAddrHit++
		}
	}

	for i := range rec.BranchStack {
		br := &rec.BranchStack[i]
		if m, _, ok := p.resolveAddr(rec.TID, rec.PID, br.From); ok {
			p.ensureBuildID(rec.TID, rec.PID, m)
		}
		if m, _, ok := p.resolveAddr(rec.TID, rec.PID, br.To); ok {
			p.ensureBuildID(rec.TID, rec.PID, m)
		}
	}
}

func (p *Parser) resolveAddr(tid, pid int, addr uint64) (*Mapping, uint64, bool) {
	if m := lookupIn(p.Mapping.mapsFor(tid), addr); m != nil {
		return m, m.FileOffset + (addr - m.Addr), true
	}
	return p.Mapping.Resolve(pid, addr)
}

func (p *Parser) dsoFor(tid, pid int, m *Mapping, offset uint64) perffile.DSOAndOffset {
	p.ensureBuildID(tid, pid, m)
	id, _ := p.BuildID.Lookup(m.Filename)
	dso := perffile.DSOAndOffset{DSOName: m.Filename, Offset: offset}
	if id != "" {
		dso.BuildID = []byte(id)
	}
	return dso
}

func (p *Parser) ensureBuildID(tid, pid int, m *Mapping) {
	if !p.cfg.ReadMissingBuildIDs || m.Filename == "" {
		return
	}
	if _, ok := p.BuildID.Lookup(m.Filename); ok {
		return
	}
	want := inodeKey{Major: m.Major, Minor: m.Minor, Ino: m.Ino}
	haveWant := len(m.BuildID) == 0 && (m.Major != 0 || m.Minor != 0 || m.Ino != 0)
	path, err := nsProbe(tid, pid, m.Filename, want, haveWant)
	if err != nil {
		p.log.WithError(err).Debug("build id probe failed")
		return
	}
	if id, ok := p.cfg.BuildIDReader.ReadBuildID(path); ok {
		p.BuildID.Inject(m.Filename, id)
		p.Stats.BuildIDsResolved++
	}
}

func (p *Parser) remapSample(rec *perffile.RecordSample, translate func(pid int, addr uint64) (uint64, bool)) {
	if a, ok := translate(rec.PID, rec.IP); ok {
		rec.IP = a
	}
	if rec.Common().Format&perffile.SampleFormatAddr != 0 && rec.Addr != 0 {
		if a, ok := translate(rec.PID, rec.Addr); ok {
			rec.Addr = a
		}
	}
	for i := range rec.BranchStack {
		br := &rec.BranchStack[i]
		if a, ok := translate(rec.PID, br.From); ok {
			br.From = a
		}
		if a, ok := translate(rec.PID, br.To); ok {
			br.To = a
		}
	}
	for i := range rec.Callchain {
		if a, ok := translate(rec.PID, rec.Callchain[i]); ok {
			rec.Callchain[i] = a
		}
	}
}
