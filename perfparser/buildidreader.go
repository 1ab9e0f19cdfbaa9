// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfparser

// BuildIDReader extracts the build ID embedded in an on-disk binary,
// e.g. an ELF NT_GNU_BUILD_ID note. Parsing the binary format itself is
// explicitly out of scope (spec.md 1's "ELF/build-ID extraction from
// on-disk binaries"); Parser treats it as an external collaborator with
// this narrow interface, injected via Config.BuildIDReader.
type BuildIDReader interface {
	// ReadBuildID returns the lowercase hex build ID embedded in the
	// file at path, or ok=false if the file has none (or can't be
	// read).
	ReadBuildID(path string) (hexID string, ok bool)
}

// NoBuildIDReader never finds a build ID. It is the default when
// Config.BuildIDReader is nil, giving Parser well-defined behavior
// (samples simply go without a discovered build ID) for callers that
// don't wire in an ELF reader of their own.
type NoBuildIDReader struct{}

func (NoBuildIDReader) ReadBuildID(path string) (string, bool) { return "", false }
