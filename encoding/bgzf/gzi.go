// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// gziEntry is one (coffset, uoffset) pair of a .gzi index, marking the start
// of a block in both the compressed and cumulative-uncompressed coordinate
// spaces.
type gziEntry struct {
	Coffset uint64
	Uoffset uint64
}

// GZI is an in-memory .gzi index: the compressed/uncompressed offset of the
// start of every block in a bgzf file except the first (whose offset,
// (0, 0), is implicit).
type GZI struct {
	entries []gziEntry
}

// GZIBuilder accumulates GZI entries from a Writer's WithListener callback,
// so an index can be produced alongside a file without a second pass over
// it. The entry recorded for each block after the first is that block's
// start offset, i.e. the previous block's end offset - the GZI on-disk
// format skips the first block because its offset is always (0, 0).
type GZIBuilder struct {
	gzi      GZI
	sawFirst bool
}

// NewGZIBuilder returns an empty GZIBuilder.
func NewGZIBuilder() *GZIBuilder {
	return &GZIBuilder{}
}

// Listen is a WriterOption-compatible callback: pass it to WithListener.
func (b *GZIBuilder) Listen(block BlockWritten) {
	if !b.sawFirst {
		b.sawFirst = true
		return
	}
	b.gzi.entries = append(b.gzi.entries, gziEntry{
		Coffset: block.CoffsetBefore,
		Uoffset: block.UoffsetBefore,
	})
}

// GZI returns the index accumulated so far. It is valid to call once the
// Writer that feeds this builder has been closed.
func (b *GZIBuilder) GZI() *GZI { return &b.gzi }

// BuildGZI scans a complete bgzf file, parsing only block headers and
// trailers (payload bytes are read past, never decompressed), and returns
// its GZI index. r
// need not be the start of the file's logical content, but must begin at a
// block boundary.
func BuildGZI(r io.Reader) (*GZI, error) {
	var gzi GZI
	var coffset, uoffset uint64
	first := true
	for {
		blockLen, uncompressedSize, err := peekBlockSize(r)
		if errors.Is(err, io.EOF) {
			return nil, ErrTruncatedFile
		}
		if err != nil {
			return nil, err
		}
		if isEOFMarker(uncompressedSize) && blockLen == len(eofMarker) {
			return &gzi, nil
		}
		if !first {
			gzi.entries = append(gzi.entries, gziEntry{Coffset: coffset, Uoffset: uoffset})
		}
		first = false
		coffset += uint64(blockLen)
		uoffset += uint64(uncompressedSize)
	}
}

// WriteTo serializes the index in the standard .gzi binary format: a
// little-endian uint64 count, followed by that many (coffset, uoffset)
// pairs, each a pair of little-endian uint64s.
func (idx *GZI) WriteTo(w io.Writer) (int64, error) {
	var written int64
	if err := binary.Write(w, binary.LittleEndian, uint64(len(idx.entries))); err != nil {
		return written, err
	}
	written += 8
	for _, e := range idx.entries {
		if err := binary.Write(w, binary.LittleEndian, e); err != nil {
			return written, err
		}
		written += 16
	}
	return written, nil
}

// LoadGZI reads a .gzi index previously written by WriteTo (or by bgzip's
// -r flag, or samtools bgzip).
func LoadGZI(r io.Reader) (*GZI, error) {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(ErrMalformedIndex, err.Error())
	}
	entries := make([]gziEntry, count)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return nil, errors.Wrap(ErrMalformedIndex, err.Error())
		}
	}
	return &GZI{entries: entries}, nil
}

// Lookup locates uncompressedOffset: it returns the compressed offset of the
// block containing it, and the number of uncompressed bytes to skip within
// that block once decompressed.
func (idx *GZI) Lookup(uncompressedOffset uint64) (coffset uint64, withinBlock uint64) {
	// entries is sorted by Uoffset ascending (blocks appear in file order);
	// find the last entry whose Uoffset is <= target, mirroring bam's
	// GIndex.RecordOffset binary search.
	n := len(idx.entries)
	x := sort.Search(n, func(i int) bool {
		return idx.entries[i].Uoffset > uncompressedOffset
	})
	if x == 0 {
		return 0, uncompressedOffset
	}
	e := idx.entries[x-1]
	return e.Coffset, uncompressedOffset - e.Uoffset
}

// VirtualOffset returns the 64-bit virtual offset corresponding to
// uncompressedOffset, for use with Reader.Seek.
func (idx *GZI) VirtualOffset(uncompressedOffset uint64) (uint64, error) {
	coffset, within := idx.Lookup(uncompressedOffset)
	if within > 0xffff {
		return 0, ErrOutOfRange
	}
	return FromOffset(Offset{File: int64(coffset), Block: uint16(within)}), nil
}

// Len returns the number of entries in the index (blocks minus one).
func (idx *GZI) Len() int { return len(idx.entries) }
