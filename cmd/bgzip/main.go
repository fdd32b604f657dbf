// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command bgzip compresses, decompresses, or reindexes bgzf files from the
// command line.
//
// By default bgzip compresses stdin, or the file named as its argument, to
// stdout; with -i and a file argument it also writes <file>.gzi, an index
// of the compressed output. With -d it decompresses
// instead, and with -r it rebuilds the .gzi index of an existing bgzf file
// without touching its contents.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/bgzf/encoding/bgzf"
)

var (
	level      = flag.Int("l", bgzf.Default, "compression level (0=store, 9=best, -1=default)")
	threads    = flag.Int("@", runtime.GOMAXPROCS(-1), "number of worker threads to use for compression/decompression")
	writeIndex = flag.Bool("i", false, "write a .gzi index alongside the compressed output")
	decompress = flag.Bool("d", false, "decompress instead of compress")
	reindex    = flag.Bool("r", false, "rebuild the .gzi index of the input file without recompressing")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	flag.Parse()

	var err error
	switch {
	case *reindex:
		err = runReindex(flag.Args())
	case *decompress:
		err = runDecompress(flag.Args())
	default:
		err = runCompress(flag.Args())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "bgzip:", err)
		os.Exit(1)
	}
}

func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(args[0])
}

func runCompress(args []string) error {
	in, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close()

	builder := bgzf.NewGZIBuilder()
	opts := []bgzf.ParallelWriterOption{bgzf.WithParallelLevel(*level)}
	if *writeIndex {
		opts = append(opts, bgzf.WithParallelListener(builder.Listen))
	}
	w := bgzf.NewParallelWriter(context.Background(), os.Stdout, append(opts, bgzf.WithWriterConcurrency(*threads))...)

	if _, err := io.Copy(w, in); err != nil {
		w.Cancel(err)
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	if *writeIndex && len(args) > 0 {
		f, err := os.Create(args[0] + ".gzi")
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := builder.GZI().WriteTo(f); err != nil {
			return err
		}
	}
	return nil
}

func runDecompress(args []string) error {
	in, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close()

	r := bgzf.NewParallelReader(context.Background(), in, bgzf.WithReaderConcurrency(*threads))
	if _, err := io.Copy(os.Stdout, r); err != nil {
		r.Cancel(err)
		return err
	}
	return r.Finish()
}

func runReindex(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("reindex requires a file argument")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	idx, err := bgzf.BuildGZI(f)
	if err != nil {
		return err
	}
	out, err := os.Create(args[0] + ".gzi")
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = idx.WriteTo(out)
	return err
}
