// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgzf reads and writes the BGZF (Blocked GNU Zip Format) container:
// gzip restricted to independently decompressible blocks of bounded size,
// each carrying a non-standard extra field recording its own compressed
// length. This enables O(1) seeking inside a compressed stream via 64-bit
// virtual offsets (coffset<<16 | uoffset).
//
// A valid bgzf file is one or more blocks followed by a 28-byte EOF marker
// block with an empty payload.
//
// Example:
//
//	var buf bytes.Buffer
//	w, err := NewWriter(&buf, WithLevel(Default))
//	n, err := w.Write([]byte("Foo bar"))
//	err = w.Close()
//
// Example with sharded output, the terminator written only on the final
// shard:
//
//	// goroutine 1
//	w1, _ := NewWriter(&shard1, WithLevel(Default))
//	w1.Write([]byte("Foo bar"))
//	w1.CloseWithoutTerminator()
//
//	// goroutine 2
//	w2, _ := NewWriter(&shard2, WithLevel(Default))
//	w2.Write([]byte(" baz!"))
//	w2.Close() // terminator goes at the end of the last shard
package bgzf

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// BlockWritten describes one block emitted by a Writer, in cumulative
// stream coordinates, so a listener can accumulate GZI entries without
// re-deriving offsets from the Writer's internals.
type BlockWritten struct {
	CoffsetBefore, CoffsetAfter uint64
	UoffsetBefore, UoffsetAfter uint64
}

type writerOpts struct {
	level     int
	blockSize int
	backend   backend
	encoder   blockEncoder
	listener  func(BlockWritten)
	logger    Logger
}

// WriterOption configures a Writer.
type WriterOption func(*writerOpts)

// WithLevel sets the compression level (Store, Default, Best, or any value
// accepted by the underlying backend). The default is Default.
func WithLevel(level int) WriterOption {
	return func(o *writerOpts) { o.level = level }
}

// WithBlockSize sets the maximum number of uncompressed bytes accumulated
// before a block is flushed. It must be <= MaxUncompressedBlockSize.
func WithBlockSize(n int) WriterOption {
	return func(o *writerOpts) { o.blockSize = n }
}

// WithBackend selects the DEFLATE backend used to compress each block. The
// default is the klauspost/compress-based backend.
func WithBackend(b backend) WriterOption {
	return func(o *writerOpts) { o.backend = b }
}

// WithLibdeflate selects the cgo libdeflate backend in place of the default.
// It returns an error if the binary was built without cgo.
func WithLibdeflate() (WriterOption, error) {
	enc, err := newLibdeflateEncoder()
	if err != nil {
		return nil, err
	}
	return func(o *writerOpts) { o.encoder = enc }, nil
}

// WithListener registers a callback invoked once per emitted data block
// (never for the EOF marker), in cumulative stream coordinates. GZIBuilder
// is a ready-made consumer of this callback.
func WithListener(fn func(BlockWritten)) WriterOption {
	return func(o *writerOpts) { o.listener = fn }
}

// WithWriterLogger sets the diagnostic collaborator. The default discards
// everything.
func WithWriterLogger(l Logger) WriterOption {
	return func(o *writerOpts) { o.logger = l }
}

// Writer compresses data into bgzf format: gzip blocks, each at most 64KiB
// compressed and 64KiB uncompressed, concatenated together and followed by
// an EOF marker block.
type Writer struct {
	w         io.Writer
	encoder   blockEncoder
	level     int
	blockSize int

	pending bytes.Buffer
	coffset uint64 // compressed byte offset of the next block to be written
	uoffset uint64 // cumulative uncompressed bytes written so far

	listener func(BlockWritten)
	logger   Logger

	closed bool
}

// NewWriter returns a new bgzf Writer wrapping w.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	o := writerOpts{
		level:     Default,
		blockSize: DefaultUncompressedBlockSize,
		logger:    NopLogger(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.blockSize > MaxUncompressedBlockSize {
		return nil, errors.Errorf("bgzf: block size %d exceeds max %d", o.blockSize, MaxUncompressedBlockSize)
	}
	enc := o.encoder
	if enc == nil {
		b := o.backend
		if b == nil {
			b = defaultBackend()
		}
		enc = genericEncoder{b}
	}
	return &Writer{
		w:         w,
		encoder:   enc,
		level:     o.level,
		blockSize: o.blockSize,
		listener:  o.listener,
		logger:    o.logger,
	}, nil
}

// Write appends buf to the bgzf payload, flushing complete blocks as the
// pending buffer fills. It never returns a short write without an error.
func (w *Writer) Write(buf []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	for i := 0; i < len(buf); {
		end := len(buf)
		limit := i + w.blockSize - w.pending.Len()
		if limit < end {
			end = limit
		}
		n, _ := w.pending.Write(buf[i:end])
		i += n
		if err := w.tryFlush(false); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// Flush encodes any non-empty pending buffer as a (possibly short) block
// and flushes the underlying writer, without appending the EOF marker.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.tryFlush(true)
}

// CloseWithoutTerminator flushes any pending data but does not append the
// EOF marker, for callers assembling a bgzf file from independently
// produced shards (only the final shard should call Close).
func (w *Writer) CloseWithoutTerminator() error {
	if w.closed {
		return ErrClosed
	}
	err := w.tryFlush(true)
	w.closed = true
	return err
}

// Close flushes any pending data and appends the EOF marker. After Close,
// further writes fail with ErrClosed.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.tryFlush(true); err != nil {
		w.closed = true
		return err
	}
	w.closed = true
	n, err := w.w.Write(eofMarker[:])
	if err != nil {
		return err
	}
	if n != len(eofMarker) {
		return errors.Errorf("bgzf: short write of EOF marker: %d of %d bytes", n, len(eofMarker))
	}
	return nil
}

// tryFlush encodes and writes complete blocks from the pending buffer, and
// additionally the remainder if flushRemainder is set.
func (w *Writer) tryFlush(flushRemainder bool) error {
	for w.pending.Len() >= w.blockSize || (flushRemainder && w.pending.Len() > 0) {
		n := w.blockSize
		if w.pending.Len() < n {
			n = w.pending.Len()
		}
		raw := w.pending.Next(n)

		encoded, err := w.encoder.encodeBlock(raw, w.level)
		if err != nil {
			return err
		}

		coffsetBefore, uoffsetBefore := w.coffset, w.uoffset
		if _, err := w.w.Write(encoded); err != nil {
			return err
		}
		w.coffset += uint64(len(encoded))
		w.uoffset += uint64(len(raw))

		if w.listener != nil {
			w.listener(BlockWritten{
				CoffsetBefore: coffsetBefore,
				CoffsetAfter:  w.coffset,
				UoffsetBefore: uoffsetBefore,
				UoffsetAfter:  w.uoffset,
			})
		}
	}
	return nil
}

// VOffset returns the virtual offset of the next byte to be written.
func (w *Writer) VOffset() uint64 {
	return w.coffset<<16 | uint64(w.pending.Len())
}
