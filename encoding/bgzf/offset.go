// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

// Offset is a virtual offset into a bgzf stream: File is the byte offset of
// the enclosing block's first byte in the compressed stream, and Block is
// the byte offset of the cursor within that block's decompressed payload.
// Offsets are ordered lexicographically by (File, Block).
type Offset struct {
	File  int64
	Block uint16
}

// Less reports whether o sorts before other.
func (o Offset) Less(other Offset) bool {
	if o.File != other.File {
		return o.File < other.File
	}
	return o.Block < other.Block
}

// Chunk is a half-open range [Begin, End) of virtual offsets, as used by
// binning indices to name the bgzf region spanned by a set of records.
type Chunk struct {
	Begin Offset
	End   Offset
}

// ToOffset unpacks a 64-bit virtual offset into an Offset.
func ToOffset(voffset uint64) Offset {
	return Offset{File: int64(voffset >> 16), Block: uint16(voffset)}
}

// FromOffset packs an Offset into a 64-bit virtual offset.
func FromOffset(offset Offset) uint64 {
	return uint64(offset.File)<<16 | uint64(offset.Block)
}
