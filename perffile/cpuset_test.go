// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUSetParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want CPUSet
	}{
		{"0", CPUSet{0}},
		{"0-3", CPUSet{0, 1, 2, 3}},
		{"0,2,4-6", CPUSet{0, 2, 4, 5, 6}},
	}
	for _, c := range cases {
		got, err := parseCPUSet(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestCPUSetStringRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "0-3", "0,2,4-6", "1,3,5,7-9"} {
		parsed, err := parseCPUSet(s)
		require.NoError(t, err)
		assert.Equal(t, s, parsed.String())
	}
}
