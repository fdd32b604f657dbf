// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetPacking(t *testing.T) {
	cases := []struct {
		file  int64
		block uint16
	}{
		{0, 0},
		{1, 2},
		{0xffffffffffff, 0xffff},
		{12345, 6789},
	}
	for _, c := range cases {
		vo := FromOffset(Offset{File: c.file, Block: c.block})
		got := ToOffset(vo)
		assert.Equal(t, c.file, got.File)
		assert.Equal(t, c.block, got.Block)
	}
}

func TestOffsetLess(t *testing.T) {
	a := Offset{File: 0, Block: 5}
	b := Offset{File: 0, Block: 10}
	c := Offset{File: 1, Block: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
}

func TestFromOffsetMatchesVirtualOffsetFormula(t *testing.T) {
	off := Offset{File: 42, Block: 7}
	want := uint64(42)<<16 | uint64(7)
	assert.Equal(t, want, FromOffset(off))
}
