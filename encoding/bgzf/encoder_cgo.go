// +build cgo

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"

	"github.com/grailbio/base/compress/libdeflate"
)

// libdeflateEncoder is a blockEncoder that writes whole framed bgzf blocks
// through github.com/grailbio/base/compress/libdeflate, the same cgo-backed
// approach encoding/bgzf/writer_cgo.go used for its compressFactory, rather
// than going through the generic deflater/writeBlock path: libdeflate's
// Writer already emits a complete gzip member (header, Extra, CRC, ISIZE),
// so the BSIZE field is patched in place exactly as the teacher's
// tryCompress does.
type libdeflateEncoder struct {
	w *libdeflate.Writer
}

// newLibdeflateEncoder returns a blockEncoder backed by libdeflate. It
// requires cgo; WithLibdeflate (in writer.go) surfaces the !cgo case
// as an error instead of a panic.
func newLibdeflateEncoder() (blockEncoder, error) {
	return &libdeflateEncoder{}, nil
}

func (e *libdeflateEncoder) encodeBlock(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if e.w == nil {
		e.w, err = libdeflate.NewWriterLevel(&buf, mapLibdeflateLevel(level))
		if err != nil {
			return nil, err
		}
	} else {
		e.w.Reset(&buf)
	}
	e.w.Header.Extra = make([]byte, bcSubfieldLen)
	copy(e.w.Header.Extra[:4], bgzfExtraPrefix[:])
	e.w.Header.OS = 0xff

	if _, err := e.w.Write(raw); err != nil {
		return nil, err
	}
	if err := e.w.Close(); err != nil {
		return nil, err
	}

	b := buf.Bytes()
	bsize := len(b) - 1
	if bsize > 0xffff {
		return nil, ErrBlockTooLarge
	}
	b[blockHeaderSize+4] = byte(bsize)
	b[blockHeaderSize+5] = byte(bsize >> 8)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func mapLibdeflateLevel(level int) int {
	switch level {
	case Store:
		return 1
	case Default:
		return libdeflate.DefaultCompression
	case Best:
		return libdeflate.BestestCompression
	default:
		return level
	}
}
