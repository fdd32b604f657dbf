// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

// Compression level aliases. Values in between are passed through to the
// underlying DEFLATE backend unchanged; Store and Best are guaranteed
// endpoints every backend must support.
const (
	Store   = 0
	Default = -1
	Best    = 9
)

// deflater is the write-side half of the pluggable DEFLATE backend
// capability (spec component A). Multiple implementations may coexist; the
// block codec never depends on a specific one.
type deflater interface {
	// deflate compresses raw into a raw (headerless) DEFLATE stream at the
	// given level. level == Store must produce a stored (uncompressed)
	// DEFLATE block.
	deflate(raw []byte, level int) ([]byte, error)
}

// inflater is the read-side half of the pluggable DEFLATE backend
// capability. size is the expected decompressed length (the block's ISIZE);
// implementations may use it to preallocate.
type inflater interface {
	inflate(compressed []byte, size int) ([]byte, error)
}

// backend bundles a deflater and inflater pair, so a single value can be
// threaded through a Writer/Reader's options.
type backend interface {
	deflater
	inflater
}

// blockEncoder produces a complete, framed bgzf block (header, extra,
// compressed payload, CRC, ISIZE) from raw uncompressed bytes. The default
// implementation adapts any deflater through writeBlock; the libdeflate
// backend (encoder_cgo.go) instead drives the whole gzip frame directly.
type blockEncoder interface {
	encodeBlock(raw []byte, level int) ([]byte, error)
}

// genericEncoder is a blockEncoder built from any deflater via writeBlock.
type genericEncoder struct{ def deflater }

func (g genericEncoder) encodeBlock(raw []byte, level int) ([]byte, error) {
	return writeBlock(g.def, level, raw)
}
