// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"container/heap"
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

type parallelWriterOpts struct {
	concurrency int
	level       int
	blockSize   int
	encoder     blockEncoder
	backend     backend
	progressCh  chan<- Progress
	listener    func(BlockWritten)
	logger      Logger
}

// ParallelWriterOption configures a ParallelWriter.
type ParallelWriterOption func(*parallelWriterOpts)

// WithWriterConcurrency sets the number of goroutines compressing blocks
// concurrently. The default is runtime.GOMAXPROCS(-1).
func WithWriterConcurrency(n int) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.concurrency = n }
}

// WithParallelLevel sets the compression level used by every worker.
func WithParallelLevel(level int) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.level = level }
}

// WithParallelBlockSize sets the maximum number of uncompressed bytes per
// block.
func WithParallelBlockSize(n int) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.blockSize = n }
}

// WithParallelBackend selects the DEFLATE backend used by every worker.
func WithParallelBackend(b backend) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.backend = b }
}

// WithWriterProgress registers a channel that receives a Progress report for
// each block as it is written, in stream order.
func WithWriterProgress(ch chan<- Progress) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.progressCh = ch }
}

// WithParallelListener registers a callback invoked once per emitted data
// block, in the same cumulative-offset shape as Writer's WithListener.
func WithParallelListener(fn func(BlockWritten)) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.listener = fn }
}

// WithParallelWriterLogger sets the diagnostic collaborator.
func WithParallelWriterLogger(l Logger) ParallelWriterOption {
	return func(o *parallelWriterOpts) { o.logger = l }
}

// ParallelWriter compresses data into bgzf format using a pool of worker
// goroutines: the caller's Write calls split input into block-sized chunks
// and hand them to the pool for compression, while a single assembler
// goroutine reorders the compressed blocks back into stream order before
// writing them out, mirroring ParallelReader's scan/worker/assemble
// pipeline run in the opposite direction.
type ParallelWriter struct {
	order uint64

	ctx    context.Context
	cancel context.CancelFunc

	encoder   blockEncoder
	level     int
	blockSize int

	workWg sync.WaitGroup
	doneWg sync.WaitGroup
	workCh chan *writeBlockJob
	doneCh chan *writeBlockJob

	progressCh chan<- Progress
	listener   func(BlockWritten)

	w io.Writer

	coffset uint64
	uoffset uint64

	pendingMu sync.Mutex
	pending   []byte

	firstErr error
	errMu    sync.Mutex

	closed bool
}

type writeBlockJob struct {
	order     uint64
	raw       []byte
	encoded   []byte
	err       error
	uoffBegin uint64
}

// NewParallelWriter returns a ParallelWriter wrapping w.
func NewParallelWriter(ctx context.Context, w io.Writer, opts ...ParallelWriterOption) *ParallelWriter {
	o := parallelWriterOpts{
		concurrency: runtime.GOMAXPROCS(-1),
		level:       Default,
		blockSize:   DefaultUncompressedBlockSize,
		logger:      NopLogger(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	enc := o.encoder
	if enc == nil {
		b := o.backend
		if b == nil {
			b = defaultBackend()
		}
		enc = genericEncoder{b}
	}

	ctx, cancel := context.WithCancel(ctx)
	pw := &ParallelWriter{
		ctx:        ctx,
		cancel:     cancel,
		encoder:    enc,
		level:      o.level,
		blockSize:  o.blockSize,
		workCh:     make(chan *writeBlockJob, o.concurrency),
		doneCh:     make(chan *writeBlockJob, o.concurrency),
		progressCh: o.progressCh,
		listener:   o.listener,
		w:          w,
	}

	pw.workWg.Add(o.concurrency)
	for i := 0; i < o.concurrency; i++ {
		go func() {
			defer pw.workWg.Done()
			pw.worker()
		}()
	}

	pw.doneWg.Add(1)
	go func() {
		defer pw.doneWg.Done()
		pw.assemble()
	}()

	return pw
}

func (pw *ParallelWriter) worker() {
	for {
		select {
		case job, ok := <-pw.workCh:
			if !ok {
				return
			}
			job.encoded, job.err = pw.encoder.encodeBlock(job.raw, pw.level)
			select {
			case pw.doneCh <- job:
			case <-pw.ctx.Done():
			}
		case <-pw.ctx.Done():
			return
		}
	}
}

type writeJobHeap []*writeBlockJob

func (h writeJobHeap) Len() int            { return len(h) }
func (h writeJobHeap) Less(i, j int) bool  { return h[i].order < h[j].order }
func (h writeJobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *writeJobHeap) Push(x interface{}) { *h = append(*h, x.(*writeBlockJob)) }
func (h *writeJobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (pw *ParallelWriter) assemble() {
	h := &writeJobHeap{}
	heap.Init(h)
	expected := uint64(1)
	for job := range pw.doneCh {
		heap.Push(h, job)
		for h.Len() > 0 && (*h)[0].order == expected {
			min := heap.Pop(h).(*writeBlockJob)
			expected++
			if min.err != nil {
				pw.setErr(min.err)
				continue
			}
			coffsetBefore := pw.coffset
			if _, err := pw.w.Write(min.encoded); err != nil {
				pw.setErr(err)
				continue
			}
			pw.coffset += uint64(len(min.encoded))
			uoffsetAfter := min.uoffBegin + uint64(len(min.raw))
			if pw.listener != nil {
				pw.listener(BlockWritten{
					CoffsetBefore: coffsetBefore,
					CoffsetAfter:  pw.coffset,
					UoffsetBefore: min.uoffBegin,
					UoffsetAfter:  uoffsetAfter,
				})
			}
			if pw.progressCh != nil {
				pw.progressCh <- Progress{Block: min.order, Compressed: len(min.encoded), Size: len(min.raw)}
			}
		}
	}
}

func (pw *ParallelWriter) setErr(err error) {
	pw.errMu.Lock()
	defer pw.errMu.Unlock()
	if pw.firstErr == nil {
		pw.firstErr = err
	}
}

func (pw *ParallelWriter) err() error {
	pw.errMu.Lock()
	defer pw.errMu.Unlock()
	return pw.firstErr
}

// Write splits buf into block-sized chunks and dispatches them for parallel
// compression. It does not block on compression completing; call Close to
// drain the pipeline before reading the result back.
func (pw *ParallelWriter) Write(buf []byte) (int, error) {
	if pw.closed {
		return 0, ErrClosed
	}
	if err := pw.err(); err != nil {
		return 0, err
	}
	pw.pendingMu.Lock()
	pw.pending = append(pw.pending, buf...)
	for len(pw.pending) >= pw.blockSize {
		chunk := make([]byte, pw.blockSize)
		copy(chunk, pw.pending[:pw.blockSize])
		pw.pending = pw.pending[pw.blockSize:]
		pw.dispatch(chunk)
	}
	pw.pendingMu.Unlock()
	return len(buf), nil
}

func (pw *ParallelWriter) dispatch(raw []byte) {
	order := atomic.AddUint64(&pw.order, 1)
	uoffBegin := pw.uoffset
	pw.uoffset += uint64(len(raw))
	job := &writeBlockJob{order: order, raw: raw, uoffBegin: uoffBegin}
	select {
	case pw.workCh <- job:
	case <-pw.ctx.Done():
	}
}

// Close flushes any pending partial block, waits for all outstanding
// compression to complete and be written in order, appends the EOF marker,
// and returns the first error encountered, if any.
func (pw *ParallelWriter) Close() error {
	if pw.closed {
		return ErrClosed
	}
	pw.pendingMu.Lock()
	if len(pw.pending) > 0 {
		chunk := pw.pending
		pw.pending = nil
		pw.dispatch(chunk)
	}
	pw.pendingMu.Unlock()

	close(pw.workCh)
	pw.workWg.Wait()
	close(pw.doneCh)
	pw.doneWg.Wait()
	pw.closed = true

	if err := pw.err(); err != nil {
		return err
	}
	n, err := pw.w.Write(eofMarker[:])
	if err != nil {
		return err
	}
	if n != len(eofMarker) {
		return errors.Errorf("bgzf: short write of EOF marker: %d of %d bytes", n, len(eofMarker))
	}
	return nil
}

// Cancel aborts outstanding compression work; Close should not be relied
// upon to produce a valid stream afterward.
func (pw *ParallelWriter) Cancel(err error) {
	pw.setErr(err)
	pw.cancel()
}
