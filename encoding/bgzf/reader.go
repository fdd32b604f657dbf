// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"io"

	"github.com/pkg/errors"
)

type readerOpts struct {
	backend backend
	cache   *Cache
	logger  Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerOpts)

// WithReaderBackend selects the DEFLATE backend used to decompress blocks.
// The default is the klauspost/compress-based backend; it is always able to
// decode blocks regardless of which backend wrote them, since bgzf carries
// only standard raw DEFLATE streams.
func WithReaderBackend(b backend) ReaderOption {
	return func(o *readerOpts) { o.backend = b }
}

// WithCache attaches a bounded LRU cache of decompressed blocks, keyed by
// compressed start offset, so repeated seeks to the same block skip
// decompression. The default is no cache.
func WithCache(c *Cache) ReaderOption {
	return func(o *readerOpts) { o.cache = c }
}

// WithReaderLogger sets the diagnostic collaborator. The default discards
// everything.
func WithReaderLogger(l Logger) ReaderOption {
	return func(o *readerOpts) { o.logger = l }
}

// Reader decompresses a bgzf stream sequentially, while tracking the virtual
// offset of the next byte to be read so that callers can record it (e.g. to
// build a GZI, or as a resume point for Seek).
type Reader struct {
	r       io.Reader
	backend backend
	cache   *Cache
	logger  Logger

	coffset int64 // compressed offset of the block currently buffered
	block   []byte
	pos     int // read cursor within block

	nextCoffset int64 // compressed offset immediately after block

	sawEOFMarker bool // true once a canonical EOF marker has been decoded
	eof          bool
	err          error
}

// NewReader returns a new bgzf Reader reading from r. r need not implement
// io.Seeker unless Seek is used.
func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	o := readerOpts{logger: NopLogger()}
	for _, fn := range opts {
		fn(&o)
	}
	b := o.backend
	if b == nil {
		b = defaultBackend()
	}
	return &Reader{
		r:       r,
		backend: b,
		cache:   o.cache,
		logger:  o.logger,
	}, nil
}

// Read implements io.Reader. It returns io.EOF only after the canonical EOF
// marker block has been consumed; a bgzf stream missing that marker reports
// ErrTruncatedFile instead once its underlying reader is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for n < len(p) {
		if r.pos >= len(r.block) {
			if r.eof {
				r.err = io.EOF
				break
			}
			if err := r.fill(); err != nil {
				r.err = err
				break
			}
			continue
		}
		m := copy(p[n:], r.block[r.pos:])
		n += m
		r.pos += m
	}
	if n > 0 && errors.Is(r.err, io.EOF) {
		// Let the caller observe this batch of bytes before EOF.
		return n, nil
	}
	return n, r.err
}

// fill reads and decompresses the next block, or records that the stream
// ended cleanly. A canonical EOF marker ends the current logical bgzf
// stream, but bgzf permits concatenating independently-terminated files, so
// fill keeps decoding past it; only an EOF marker followed by no further
// bytes is treated as the terminal end of input.
func (r *Reader) fill() error {
	for {
		coffset := r.nextCoffset
		if r.cache != nil {
			if payload, ok := r.cache.Get(coffset); ok {
				blockLen, err := r.skipCachedBlock()
				if err != nil {
					return err
				}
				r.coffset = coffset
				r.block = payload
				r.pos = 0
				r.nextCoffset = coffset + int64(blockLen)
				r.sawEOFMarker = false
				return nil
			}
		}

		payload, blockLen, err := readBlock(r.backend, r.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if r.sawEOFMarker {
					r.eof = true
					r.block = nil
					r.pos = 0
					return nil
				}
				return ErrTruncatedFile
			}
			return err
		}
		if isEOFMarker(uint32(len(payload))) && blockLen == len(eofMarker) {
			r.sawEOFMarker = true
			r.nextCoffset = coffset + int64(blockLen)
			continue
		}
		if r.cache != nil {
			r.cache.Add(coffset, payload)
		}
		r.sawEOFMarker = false
		r.coffset = coffset
		r.block = payload
		r.pos = 0
		r.nextCoffset = coffset + int64(blockLen)
		return nil
	}
}

// skipCachedBlock advances the underlying reader past a block whose
// decompressed payload was served from cache, since r.r has no seek
// guarantee; callers constructing a Reader over a non-seekable stream should
// not combine sequential Read with a cache that can produce hits, so this
// path is exercised only when r.r is also an io.Seeker.
func (r *Reader) skipCachedBlock() (int, error) {
	blockLen, _, err := peekBlockSize(r.r)
	if err != nil {
		return 0, err
	}
	return blockLen, nil
}

// VirtualOffset returns the virtual offset of the next byte Read will
// return.
func (r *Reader) VirtualOffset() uint64 {
	return uint64(r.coffset)<<16 | uint64(r.pos)
}

// Seek repositions the Reader at the given virtual offset. The underlying
// reader must implement io.Seeker.
func (r *Reader) Seek(vo uint64) error {
	off := ToOffset(vo)
	rs, ok := r.r.(io.Seeker)
	if !ok {
		return ErrNotASeeker
	}
	if _, err := rs.Seek(off.File, io.SeekStart); err != nil {
		return err
	}
	r.err = nil
	r.eof = false
	r.sawEOFMarker = false
	r.nextCoffset = off.File
	if err := r.fill(); err != nil {
		r.err = err
		return err
	}
	if int(off.Block) >= len(r.block) {
		return ErrOutOfRange
	}
	r.pos = int(off.Block)
	return nil
}

// SeekUncompressed repositions the Reader at the given offset into the
// logical (uncompressed) stream, using idx to translate it into a virtual
// offset. The underlying reader must implement io.Seeker.
func (r *Reader) SeekUncompressed(uoffset uint64, idx *GZI) error {
	vo, err := idx.VirtualOffset(uoffset)
	if err != nil {
		return err
	}
	return r.Seek(vo)
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
