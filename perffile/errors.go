// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import "fmt"

// Truncated indicates the input ended inside a declared region: a
// section, record, or trailer claimed more bytes than were available.
type Truncated struct {
	Context string
	Want    int64
	Have    int64
}

func (e *Truncated) Error() string {
	return fmt.Sprintf("truncated %s: want %d bytes, have %d", e.Context, e.Want, e.Have)
}

// Malformed indicates a length or offset contradicted one of the
// container's structural invariants (bad magic, section out of bounds,
// inconsistent attr size, and so on).
type Malformed struct {
	Context string
	Detail  string
}

func (e *Malformed) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("malformed %s", e.Context)
	}
	return fmt.Sprintf("malformed %s: %s", e.Context, e.Detail)
}

// SizeMismatch indicates a record's header.Size disagreed with the size
// computed from its fixed and variable payload (and trailer, if any).
type SizeMismatch struct {
	RecordType RecordType
	HeaderSize int
	Computed   int
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("record type %v: header size %d does not match computed size %d", e.RecordType, e.HeaderSize, e.Computed)
}

// UnknownID indicates a sample (or sample_id trailer) carried an
// EventAttr ID that does not appear in any attribute's ids list.
type UnknownID struct {
	ID attrID
}

func (e *UnknownID) Error() string {
	return fmt.Sprintf("sample refers to unknown event attr id %d", uint64(e.ID))
}

// InconsistentPositions indicates two attributes in the same file
// disagree about where the sample ID field lives in the record layout,
// making it ambiguous which attribute a given sample belongs to.
type InconsistentPositions struct {
	A, B int
}

func (e *InconsistentPositions) Error() string {
	return fmt.Sprintf("attributes disagree on sample id position: %d vs %d", e.A, e.B)
}

// Io wraps a filesystem error encountered while probing for a build ID.
// It is non-fatal: the sample that triggered the probe is still emitted,
// just without a build ID.
type Io struct {
	Path string
	Err  error
}

func (e *Io) Error() string {
	return fmt.Sprintf("io error probing %s: %v", e.Path, e.Err)
}

func (e *Io) Unwrap() error {
	return e.Err
}
