// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"io"
	"io/ioutil"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestStream(t *testing.T, input []byte, blockSize int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithLevel(1), WithBlockSize(blockSize))
	require.Nil(t, err)
	_, err = w.Write(input)
	require.Nil(t, err)
	require.Nil(t, w.Close())
	return buf.Bytes()
}

func TestReaderRoundTrip(t *testing.T) {
	for _, length := range []int{0, 1, 100, 65279, 65280, 65281, 500000} {
		input := make([]byte, length)
		_, err := rand.Read(input)
		require.Nil(t, err)

		stream := writeTestStream(t, input, DefaultUncompressedBlockSize)
		r, err := NewReader(bytes.NewReader(stream))
		require.Nil(t, err)
		got, err := ioutil.ReadAll(r)
		require.Nil(t, err)
		assert.Equal(t, input, got)
	}
}

func TestReaderConcatenatedFiles(t *testing.T) {
	part1 := writeTestStream(t, []byte("hello "), DefaultUncompressedBlockSize)
	part2 := writeTestStream(t, []byte("world"), DefaultUncompressedBlockSize)

	var both bytes.Buffer
	both.Write(part1)
	both.Write(part2)

	r, err := NewReader(&both)
	require.Nil(t, err)
	got, err := ioutil.ReadAll(r)
	require.Nil(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestReaderVirtualOffsetAdvancesAcrossBlocks(t *testing.T) {
	stream := writeTestStream(t, []byte("ABCDEFGHIJ"), 5)
	r, err := NewReader(bytes.NewReader(stream))
	require.Nil(t, err)

	p := make([]byte, 4)
	n, err := r.Read(p)
	require.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(4), r.VirtualOffset())

	// Reading past the first block's remaining byte must reset uoffset to
	// 0 and advance coffset.
	n, err = r.Read(p[:2])
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	vo := r.VirtualOffset()
	assert.Equal(t, uint64(1), vo&0xffff)
	assert.True(t, vo>>16 > 0)
}

func TestReaderSeekAndVirtualOffsetStability(t *testing.T) {
	input := make([]byte, 400000)
	_, err := rand.Read(input)
	require.Nil(t, err)
	stream := writeTestStream(t, input, 65280)

	r, err := NewReader(bytes.NewReader(stream))
	require.Nil(t, err)

	idx, err := BuildGZI(bytes.NewReader(stream))
	require.Nil(t, err)

	for _, u := range []uint64{0, 1, 65279, 65280, 200000, 399999} {
		vo, err := idx.VirtualOffset(u)
		require.Nil(t, err)
		require.Nil(t, r.Seek(vo))
		assert.Equal(t, vo, r.VirtualOffset())

		b := make([]byte, 1)
		n, err := r.Read(b)
		require.Nil(t, err)
		require.Equal(t, 1, n)
		assert.Equal(t, input[u], b[0])
	}
}

func TestReaderSeekOutOfRange(t *testing.T) {
	stream := writeTestStream(t, []byte("hello"), DefaultUncompressedBlockSize)
	r, err := NewReader(bytes.NewReader(stream))
	require.Nil(t, err)

	// Block holds 5 bytes; seeking to uoffset 5 is already out of range
	// (there is no byte 5 to read).
	vo := uint64(5)
	err = r.Seek(vo)
	assert.Equal(t, ErrOutOfRange, err)
}

func TestReaderMissingEOFMarkerIsTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithLevel(1))
	require.Nil(t, err)
	_, err = w.Write([]byte("hello"))
	require.Nil(t, err)
	require.Nil(t, w.CloseWithoutTerminator())

	r, err := NewReader(&buf)
	require.Nil(t, err)
	_, err = ioutil.ReadAll(r)
	assert.Equal(t, ErrTruncatedFile, err)
}

func TestReaderChecksumErrorAtCorruptBlock(t *testing.T) {
	// Three data blocks of 5 bytes each, corrupt the third's CRC.
	stream := writeTestStream(t, []byte("AAAAABBBBBCCCCC"), 5)

	// Locate the third block: each 5-byte "AAAAA"/"BBBBB" block ends up a
	// fixed size at level 1 with klauspost/flate, but to stay robust we
	// parse blocks instead of hardcoding offsets.
	r := bytes.NewReader(stream)
	var offsets []int
	for {
		pos, _ := r.Seek(0, io.SeekCurrent)
		blockSize, uSize, err := peekBlockSize(r)
		if err != nil {
			break
		}
		offsets = append(offsets, int(pos))
		if isEOFMarker(uSize) && blockSize == len(eofMarker) {
			break
		}
	}
	require.True(t, len(offsets) >= 3)
	// Find the third block's end (start of the 4th recorded offset, i.e. the
	// EOF marker here) to locate its CRC trailer.
	fourth := offsets[3]
	crcOffset := fourth - 8
	stream[crcOffset] ^= 0xff

	rdr, err := NewReader(bytes.NewReader(stream))
	require.Nil(t, err)
	buf := make([]byte, 10)
	_, err = io.ReadFull(rdr, buf)
	require.Nil(t, err, "first two blocks must decode cleanly before the corruption is reached")

	_, err = rdr.Read(make([]byte, 5))
	assert.Equal(t, ErrChecksum, err)
}

func TestReaderWithCache(t *testing.T) {
	input := make([]byte, 200000)
	_, err := rand.Read(input)
	require.Nil(t, err)
	stream := writeTestStream(t, input, 65280)

	cache, err := NewCache(4)
	require.Nil(t, err)

	idx, err := BuildGZI(bytes.NewReader(stream))
	require.Nil(t, err)

	r, err := NewReader(bytes.NewReader(stream), WithCache(cache))
	require.Nil(t, err)

	vo, err := idx.VirtualOffset(100000)
	require.Nil(t, err)
	require.Nil(t, r.Seek(vo))
	b1 := make([]byte, 16)
	_, err = io.ReadFull(r, b1)
	require.Nil(t, err)

	// Seeking back to the same block should be served from cache and
	// return the same bytes.
	require.Nil(t, r.Seek(vo))
	b2 := make([]byte, 16)
	_, err = io.ReadFull(r, b2)
	require.Nil(t, err)

	assert.Equal(t, b1, b2)
	assert.Equal(t, input[100000:100016], b1)
	assert.True(t, cache.Len() > 0)
}
