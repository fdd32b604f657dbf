// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

const (
	// DefaultUncompressedBlockSize is the default number of uncompressed
	// bytes accumulated before a block is flushed. It is chosen slightly
	// below 64KiB (sambamba's and biogo's choice too) so that even
	// incompressible input, plus DEFLATE and gzip-framing overhead, always
	// fits inside the 65536-byte block ceiling.
	DefaultUncompressedBlockSize = 0xff00

	// MaxUncompressedBlockSize is the largest legal uncompressed payload for
	// a single block.
	MaxUncompressedBlockSize = 0x10000

	// maxBlockSize is the largest legal total (encoded) size of a block.
	maxBlockSize = 0x10000

	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 0x08
	gzipFlagFextra = 0x04

	// blockHeaderSize is the size, in bytes, of the fixed gzip header plus
	// the 2-byte XLEN field that precedes the extra subfields.
	blockHeaderSize = 12

	bcSubfieldLen = 6 // SI1, SI2, SLEN(2), BSIZE(2)
)

var (
	bgzfExtraPrefix = [4]byte{66, 67, 2, 0} // SI1='B', SI2='C', SLEN=2 (LE)

	// eofMarker is the canonical 28-byte bgzf EOF block: a valid gzip
	// member with an empty payload and BC subfield BSIZE = 27.
	eofMarker = [28]byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
)

var le = binary.LittleEndian

// writeBlock serializes raw (len(raw) <= MaxUncompressedBlockSize) into a
// single self-contained bgzf block using def to produce the raw DEFLATE
// stream, and returns the encoded bytes.
func writeBlock(def deflater, level int, raw []byte) ([]byte, error) {
	compressed, err := def.deflate(raw, level)
	if err != nil {
		return nil, errors.Wrap(err, "bgzf: compress block")
	}

	total := blockHeaderSize + bcSubfieldLen + len(compressed) + 8
	if total-1 > 0xffff {
		return nil, ErrBlockTooLarge
	}

	buf := make([]byte, total)
	buf[0], buf[1], buf[2], buf[3] = gzipID1, gzipID2, gzipDeflate, gzipFlagFextra
	// bytes 4:8 MTIME left at zero, byte 8 XFL, byte 9 OS=0xff (unknown)
	buf[9] = 0xff
	le.PutUint16(buf[10:12], bcSubfieldLen)

	extra := buf[blockHeaderSize : blockHeaderSize+bcSubfieldLen]
	copy(extra[:4], bgzfExtraPrefix[:])
	le.PutUint16(extra[4:6], uint16(total-1))

	copy(buf[blockHeaderSize+bcSubfieldLen:], compressed)

	payloadEnd := blockHeaderSize + bcSubfieldLen + len(compressed)
	le.PutUint32(buf[payloadEnd:payloadEnd+4], crc32.ChecksumIEEE(raw))
	le.PutUint32(buf[payloadEnd+4:payloadEnd+8], uint32(len(raw)))

	return buf, nil
}

// readBlock reads and validates a single block from r, returning its
// decompressed payload and the number of compressed bytes it occupied
// (needed by callers tracking coffset). io.EOF is returned, with a nil
// payload, only when r has no more bytes at all; any error after at least
// one byte has been read is one of the sentinel errors in errors.go
// (possibly wrapped), except a DEFLATE decoding failure, which wraps the
// backend's own error.
func readBlock(inf inflater, r io.Reader) (payload []byte, blockSize int, err error) {
	var hdr [blockHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	if hdr[0] != gzipID1 || hdr[1] != gzipID2 || hdr[2] != gzipDeflate {
		return nil, 0, ErrMalformedHeader
	}
	if hdr[3]&gzipFlagFextra == 0 {
		return nil, 0, ErrNoBCField
	}
	xlen := int(le.Uint16(hdr[10:12]))

	extra := make([]byte, xlen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return nil, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}

	bsize, ok, err := findBSIZE(extra)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrNoBCField
	}

	total := int(bsize) + 1
	compressedLen := total - blockHeaderSize - xlen - 8
	if compressedLen < 0 {
		return nil, 0, ErrMalformedHeader
	}

	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}

	var trailer [8]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	wantCRC := le.Uint32(trailer[0:4])
	isize := le.Uint32(trailer[4:8])

	decompressed, err := inf.inflate(compressed, int(isize))
	if err != nil {
		return nil, 0, errors.Wrap(err, "bgzf: decompress block")
	}
	if uint32(len(decompressed)) != isize {
		return nil, 0, ErrLengthMismatch
	}
	if crc32.ChecksumIEEE(decompressed) != wantCRC {
		return nil, 0, ErrChecksum
	}
	return decompressed, total, nil
}

// peekBlockSize reads one whole block (header, extra, compressed payload and
// trailer) to learn its total size and uncompressed size without
// decompressing the payload, the "cheap parse" spec.md's parallel reader and GZI builder rely
// on. It leaves r positioned immediately after the block.
func peekBlockSize(r io.Reader) (blockSize int, uncompressedSize uint32, err error) {
	var hdr [blockHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return 0, 0, io.EOF
		}
		return 0, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	if hdr[0] != gzipID1 || hdr[1] != gzipID2 || hdr[2] != gzipDeflate {
		return 0, 0, ErrMalformedHeader
	}
	if hdr[3]&gzipFlagFextra == 0 {
		return 0, 0, ErrNoBCField
	}
	xlen := int(le.Uint16(hdr[10:12]))

	extra := make([]byte, xlen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return 0, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	bsize, ok, err := findBSIZE(extra)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, ErrNoBCField
	}
	total := int(bsize) + 1
	compressedLen := total - blockHeaderSize - xlen - 8
	if compressedLen < 0 {
		return 0, 0, ErrMalformedHeader
	}
	rest := make([]byte, compressedLen+8)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	isize := le.Uint32(rest[compressedLen+4 : compressedLen+8])
	return total, isize, nil
}

// findBSIZE scans a gzip Extra field for the BC subfield and returns its
// BSIZE value. It fails with ErrMalformedHeader if the subfields don't
// consume exactly len(extra) bytes.
func findBSIZE(extra []byte) (bsize uint16, ok bool, err error) {
	pos := 0
	for pos < len(extra) {
		if pos+4 > len(extra) {
			return 0, false, ErrMalformedHeader
		}
		si1, si2 := extra[pos], extra[pos+1]
		slen := int(le.Uint16(extra[pos+2 : pos+4]))
		if pos+4+slen > len(extra) {
			return 0, false, ErrMalformedHeader
		}
		if si1 == 'B' && si2 == 'C' && slen == 2 {
			bsize = le.Uint16(extra[pos+4 : pos+6])
			ok = true
		}
		pos += 4 + slen
	}
	return bsize, ok, nil
}

// isEOFMarker reports whether a just-read block's uncompressed size is zero,
// as the EOF marker's is. It does not look at the block's other bytes;
// callers also compare the block's total size with len(eofMarker).
func isEOFMarker(uncompressedSize uint32) bool {
	return uncompressedSize == 0
}
