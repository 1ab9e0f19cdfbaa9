// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfparser

import (
	"fmt"
	"os"

	"github.com/perfdata-go/perfdata/perffile"
	"golang.org/x/sys/unix"
)

// inodeKey identifies a file by the (major, minor, inode) triple an
// MMAP2 event records, which is stable across bind mounts and chroots
// in a way a bare pathname is not.
type inodeKey struct {
	Major, Minor uint32
	Ino          uint64
}

func statKey(path string) (inodeKey, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return inodeKey{}, err
	}
	dev := uint64(st.Dev)
	return inodeKey{
		Major: unix.Major(dev),
		Minor: unix.Minor(dev),
		Ino:   uint64(st.Ino),
	}, nil
}

// nsProbe stats path through, in order, tid's mount namespace
// (/proc/<tid>/root/path), pid's (/proc/<pid>/root/path), then the
// probing process's own root filesystem, and returns the first
// candidate whose (major, minor, inode) matches want (spec.md 4.6,
// 5). If haveWant is false (no inode info available from the MMAP2
// record), the first candidate that can be stat'ed is accepted.
// Candidates are not opened; the caller opens the returned path.
func nsProbe(tid, pid int, path string, want inodeKey, haveWant bool) (string, error) {
	candidates := []string{
		fmt.Sprintf("/proc/%d/root%s", tid, path),
		fmt.Sprintf("/proc/%d/root%s", pid, path),
		path,
	}

	var lastErr error
	for _, cand := range candidates {
		key, err := statKey(cand)
		if err != nil {
			lastErr = err
			continue
		}
		if !haveWant || key == want {
			return cand, nil
		}
		lastErr = &perffile.Io{Path: cand, Err: os.ErrNotExist}
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return "", &perffile.Io{Path: path, Err: lastErr}
}
