// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGZIBuilderMatchesBuildGZI(t *testing.T) {
	input := make([]byte, 300000)
	_, err := rand.Read(input)
	require.Nil(t, err)

	var buf bytes.Buffer
	builder := NewGZIBuilder()
	w, err := NewWriter(&buf, WithLevel(1), WithBlockSize(65280), WithListener(builder.Listen))
	require.Nil(t, err)
	_, err = w.Write(input)
	require.Nil(t, err)
	require.Nil(t, w.Close())

	// BuildGZI must reconstruct the identical index from the bytes alone.
	scanned, err := BuildGZI(bytes.NewReader(buf.Bytes()))
	require.Nil(t, err)

	fromListener := builder.GZI()
	assert.Equal(t, fromListener.Len(), scanned.Len())
	for u := 0; u < len(input); u += 40000 {
		c1, w1 := fromListener.Lookup(uint64(u))
		c2, w2 := scanned.Lookup(uint64(u))
		assert.Equal(t, c1, c2)
		assert.Equal(t, w1, w2)
	}
}

func TestGZIWriteLoadRoundTrip(t *testing.T) {
	input := make([]byte, 200000)
	_, err := rand.Read(input)
	require.Nil(t, err)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithLevel(1), WithBlockSize(65280))
	require.Nil(t, err)
	_, err = w.Write(input)
	require.Nil(t, err)
	require.Nil(t, w.Close())

	idx, err := BuildGZI(bytes.NewReader(buf.Bytes()))
	require.Nil(t, err)
	assert.True(t, idx.Len() > 0)

	var idxBuf bytes.Buffer
	n, err := idx.WriteTo(&idxBuf)
	require.Nil(t, err)
	assert.Equal(t, int64(8+16*idx.Len()), n)

	loaded, err := LoadGZI(bytes.NewReader(idxBuf.Bytes()))
	require.Nil(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.entries, loaded.entries)
}

func TestGZILookupBeforeFirstEntry(t *testing.T) {
	idx := &GZI{entries: []gziEntry{{Coffset: 100, Uoffset: 65280}}}
	c, w := idx.Lookup(0)
	assert.Equal(t, uint64(0), c)
	assert.Equal(t, uint64(0), w)
}

func TestGZILookupWithinLaterBlock(t *testing.T) {
	idx := &GZI{entries: []gziEntry{
		{Coffset: 100, Uoffset: 65280},
		{Coffset: 250, Uoffset: 130560},
	}}
	c, w := idx.Lookup(65290)
	assert.Equal(t, uint64(100), c)
	assert.Equal(t, uint64(10), w)

	c, w = idx.Lookup(130560)
	assert.Equal(t, uint64(250), c)
	assert.Equal(t, uint64(0), w)
}

func TestLoadGZIMalformed(t *testing.T) {
	// Count says there are entries, but the stream is short.
	short := []byte{5, 0, 0, 0, 0, 0, 0, 0}
	_, err := LoadGZI(bytes.NewReader(short))
	assert.Equal(t, ErrMalformedIndex, errors.Cause(err))
}

func TestBuildGZIRejectsTruncatedFile(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithLevel(1))
	require.Nil(t, err)
	_, err = w.Write([]byte("hello"))
	require.Nil(t, err)
	require.Nil(t, w.CloseWithoutTerminator())

	_, err = BuildGZI(bytes.NewReader(buf.Bytes()))
	assert.Equal(t, ErrTruncatedFile, err)
}
