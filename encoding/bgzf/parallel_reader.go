// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"container/heap"
	"context"
	"hash/crc32"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Progress reports the completion of one correctly-ordered block during
// parallel decompression or compression.
type Progress struct {
	Block      uint64
	Compressed int
	Size       int
}

type parallelReaderOpts struct {
	concurrency int
	backend     backend
	progressCh  chan<- Progress
	logger      Logger
}

// ParallelReaderOption configures a ParallelReader.
type ParallelReaderOption func(*parallelReaderOpts)

// WithReaderConcurrency sets the number of goroutines decompressing blocks
// concurrently. The default is runtime.GOMAXPROCS(-1).
func WithReaderConcurrency(n int) ParallelReaderOption {
	return func(o *parallelReaderOpts) { o.concurrency = n }
}

// WithParallelReaderBackend selects the DEFLATE backend used to decompress
// blocks.
func WithParallelReaderBackend(b backend) ParallelReaderOption {
	return func(o *parallelReaderOpts) { o.backend = b }
}

// WithProgress registers a channel that receives a Progress report for each
// block as it is emitted, in stream order.
func WithProgress(ch chan<- Progress) ParallelReaderOption {
	return func(o *parallelReaderOpts) { o.progressCh = ch }
}

// WithParallelReaderLogger sets the diagnostic collaborator.
func WithParallelReaderLogger(l Logger) ParallelReaderOption {
	return func(o *parallelReaderOpts) { o.logger = l }
}

// ParallelReader decompresses a bgzf stream using a pool of worker
// goroutines: one goroutine walks the stream splitting it into blocks
// (cheap, since every block is self-framed), a pool decompresses blocks
// concurrently, and a single assembler goroutine reorders their output back
// into stream order before it reaches Read.
type ParallelReader struct {
	order uint64

	ctx    context.Context
	cancel context.CancelFunc

	workWg sync.WaitGroup
	doneWg sync.WaitGroup
	workCh chan *readBlockJob
	doneCh chan *readBlockJob

	progressCh chan<- Progress
	prd        *io.PipeReader
	pwr        *io.PipeWriter

	scanErr error
	scanWg  sync.WaitGroup
}

type readBlockJob struct {
	order   uint64
	coffset int64

	raw       []byte // framed, undecompressed block bytes (header..trailer)
	err       error
	data      []byte
	blockSize int
}

// NewParallelReader starts decompressing r's bgzf stream in parallel.
// Decompressed data is available through Read.
func NewParallelReader(ctx context.Context, r io.Reader, opts ...ParallelReaderOption) *ParallelReader {
	o := parallelReaderOpts{
		concurrency: runtime.GOMAXPROCS(-1),
		logger:      NopLogger(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	b := o.backend
	if b == nil {
		b = defaultBackend()
	}

	ctx, cancel := context.WithCancel(ctx)
	pr := &ParallelReader{
		ctx:        ctx,
		cancel:     cancel,
		workCh:     make(chan *readBlockJob, o.concurrency),
		doneCh:     make(chan *readBlockJob, o.concurrency),
		progressCh: o.progressCh,
	}
	pr.prd, pr.pwr = io.Pipe()

	pr.workWg.Add(o.concurrency)
	for i := 0; i < o.concurrency; i++ {
		go func() {
			defer pr.workWg.Done()
			pr.worker(b)
		}()
	}
	go func() {
		pr.workWg.Wait()
		close(pr.doneCh)
	}()

	pr.doneWg.Add(1)
	go func() {
		defer pr.doneWg.Done()
		pr.assemble()
	}()

	pr.scanWg.Add(1)
	go func() {
		defer pr.scanWg.Done()
		pr.scan(r)
	}()

	return pr
}

func (pr *ParallelReader) worker(b backend) {
	for {
		select {
		case job, ok := <-pr.workCh:
			if !ok {
				return
			}
			job.data, job.err = decodeFramedBlock(b, job.raw)
			select {
			case pr.doneCh <- job:
			case <-pr.ctx.Done():
			}
		case <-pr.ctx.Done():
			return
		}
	}
}

// scan reads the stream sequentially, cheaply identifying block boundaries
// via readFramedBlock's header/trailer parse, and dispatches each block's raw
// bytes to the worker pool without decompressing them itself.
func (pr *ParallelReader) scan(r io.Reader) {
	defer close(pr.workCh)
	var coffset int64
	for {
		raw, blockSize, uncompressedSize, err := readFramedBlock(r)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			pr.scanErr = err
			pr.pwr.CloseWithError(err)
			return
		}
		if isEOFMarker(uncompressedSize) && blockSize == len(eofMarker) {
			return
		}
		order := atomic.AddUint64(&pr.order, 1)
		job := &readBlockJob{order: order, coffset: coffset, raw: raw, blockSize: blockSize}
		select {
		case pr.workCh <- job:
		case <-pr.ctx.Done():
			return
		}
		coffset += int64(blockSize)
	}
}

type readJobHeap []*readBlockJob

func (h readJobHeap) Len() int            { return len(h) }
func (h readJobHeap) Less(i, j int) bool  { return h[i].order < h[j].order }
func (h readJobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readJobHeap) Push(x interface{}) { *h = append(*h, x.(*readBlockJob)) }
func (h *readJobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (pr *ParallelReader) assemble() {
	defer pr.pwr.Close()
	h := &readJobHeap{}
	heap.Init(h)
	expected := uint64(1)
	for job := range pr.doneCh {
		heap.Push(h, job)
		for h.Len() > 0 && (*h)[0].order == expected {
			min := heap.Pop(h).(*readBlockJob)
			expected++
			if min.err != nil {
				pr.pwr.CloseWithError(min.err)
				pr.cancel()
				return
			}
			if _, err := pr.pwr.Write(min.data); err != nil {
				pr.cancel()
				return
			}
			if pr.progressCh != nil {
				pr.progressCh <- Progress{Block: min.order, Compressed: min.blockSize, Size: len(min.data)}
			}
		}
	}
}

// Read implements io.Reader over the reassembled, decompressed stream.
func (pr *ParallelReader) Read(p []byte) (int, error) {
	return pr.prd.Read(p)
}

// Cancel unblocks any goroutine reading from this ParallelReader or waiting
// in Finish.
func (pr *ParallelReader) Cancel(err error) {
	pr.cancel()
	pr.prd.CloseWithError(err)
}

// Finish waits for all outstanding work to complete. It must be called
// exactly once, typically after Read has returned io.EOF or an error.
func (pr *ParallelReader) Finish() error {
	pr.scanWg.Wait()
	pr.workWg.Wait()
	pr.doneWg.Wait()
	return pr.scanErr
}

// readFramedBlock reads one complete block (header through trailer, raw
// undecompressed bytes) from r, along with its total size and reported
// uncompressed size, without inflating its payload.
func readFramedBlock(r io.Reader) (raw []byte, blockSize int, uncompressedSize uint32, err error) {
	var hdr [blockHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, 0, 0, io.EOF
		}
		return nil, 0, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	if hdr[0] != gzipID1 || hdr[1] != gzipID2 || hdr[2] != gzipDeflate {
		return nil, 0, 0, ErrMalformedHeader
	}
	if hdr[3]&gzipFlagFextra == 0 {
		return nil, 0, 0, ErrNoBCField
	}
	xlen := int(le.Uint16(hdr[10:12]))

	extra := make([]byte, xlen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return nil, 0, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	bsize, ok, err := findBSIZE(extra)
	if err != nil {
		return nil, 0, 0, err
	}
	if !ok {
		return nil, 0, 0, ErrNoBCField
	}
	total := int(bsize) + 1
	rest := total - blockHeaderSize - xlen
	if rest < 8 {
		return nil, 0, 0, ErrMalformedHeader
	}

	buf := make([]byte, total)
	copy(buf, hdr[:])
	copy(buf[blockHeaderSize:], extra)
	if _, err := io.ReadFull(r, buf[blockHeaderSize+xlen:]); err != nil {
		return nil, 0, 0, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	isize := le.Uint32(buf[total-4:])
	return buf, total, isize, nil
}

// decodeFramedBlock inflates a block previously read by readFramedBlock.
func decodeFramedBlock(b backend, raw []byte) ([]byte, error) {
	xlen := int(le.Uint16(raw[10:12]))
	compressed := raw[blockHeaderSize+xlen : len(raw)-8]
	wantCRC := le.Uint32(raw[len(raw)-8 : len(raw)-4])
	isize := le.Uint32(raw[len(raw)-4:])
	decompressed, err := b.inflate(compressed, int(isize))
	if err != nil {
		return nil, errors.Wrap(err, "bgzf: decompress block")
	}
	if uint32(len(decompressed)) != isize {
		return nil, ErrLengthMismatch
	}
	if crc32.ChecksumIEEE(decompressed) != wantCRC {
		return nil, ErrChecksum
	}
	return decompressed, nil
}
