// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfparser

import "fmt"

// InsufficientlyMapped indicates fewer than Config.SampleMappingPercentageThreshold
// of samples resolved to a mapping, so the parse is considered unusable.
type InsufficientlyMapped struct {
	Mapped, Total int
	Threshold     float64
}

func (e *InsufficientlyMapped) Error() string {
	pct := 0.0
	if e.Total > 0 {
		pct = 100 * float64(e.Mapped) / float64(e.Total)
	}
	return fmt.Sprintf("only %d/%d samples (%.1f%%) resolved to a mapping, below threshold %.1f%%",
		e.Mapped, e.Total, pct, e.Threshold*100)
}

// Cancelled indicates a Parser run was stopped by its context before it
// finished. Any events parsed so far remain in a well-formed state.
type Cancelled struct {
	// Err is the context error that caused cancellation.
	Err error
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("parse cancelled: %v", e.Err)
}

func (e *Cancelled) Unwrap() error {
	return e.Err
}
