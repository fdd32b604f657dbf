// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import "github.com/pkg/errors"

// The errors below classify every failure the bgzf package can report, per
// the error kinds in the package's design: a caller that needs to
// distinguish a corrupt block from a truncated file from a stale writer can
// do so with errors.Is rather than parsing an error string.
var (
	// ErrMalformedHeader is returned when a block's gzip header, XLEN, or
	// extra-subfield framing is inconsistent.
	ErrMalformedHeader = errors.New("bgzf: malformed block header")

	// ErrNoBCField is returned when a gzip member is well-formed but carries
	// no BC (BSIZE) extra subfield, i.e. it is not a bgzf block.
	ErrNoBCField = errors.New("bgzf: gzip member has no BC subfield")

	// ErrChecksum is returned when a block's trailing CRC32 does not match
	// the CRC32 of its decompressed payload.
	ErrChecksum = errors.New("bgzf: block checksum mismatch")

	// ErrLengthMismatch is returned when a block's ISIZE field disagrees
	// with the length of its decompressed payload.
	ErrLengthMismatch = errors.New("bgzf: decompressed length does not match ISIZE")

	// ErrBlockTooLarge is returned when an encoded block, including its
	// gzip header and trailer, would exceed 65536 bytes.
	ErrBlockTooLarge = errors.New("bgzf: block exceeds 65536 bytes")

	// ErrTruncatedFile is returned by Reader.Read and BuildGZI when the
	// input ends without a trailing EOF marker. The check is always made;
	// there is no option to turn it off.
	ErrTruncatedFile = errors.New("bgzf: file is missing its EOF marker")

	// ErrMalformedIndex is returned when a GZI file is short, has a count
	// that disagrees with its length, or is otherwise not parseable.
	ErrMalformedIndex = errors.New("bgzf: malformed gzi index")

	// ErrOutOfRange is returned when a virtual offset or seek target points
	// past the end of its block or the end of the file.
	ErrOutOfRange = errors.New("bgzf: offset out of range")

	// ErrClosed is returned by any operation on a Writer after Close has
	// been called.
	ErrClosed = errors.New("bgzf: writer is closed")

	// ErrNotASeeker is returned by Seek when the underlying reader does not
	// implement io.Seeker.
	ErrNotASeeker = errors.New("bgzf: underlying reader is not seekable")
)
