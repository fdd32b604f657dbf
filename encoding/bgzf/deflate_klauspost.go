// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// klauspostBackend is the default, always-available DEFLATE backend. It
// requires no cgo and is what grailbio/bio's own go.mod already depends on
// (github.com/klauspost/compress), used throughout encoding/bam for gzip
// framing.
type klauspostBackend struct{}

func mapLevel(level int) int {
	switch level {
	case Store:
		return flate.NoCompression
	case Default:
		return flate.DefaultCompression
	case Best:
		return flate.BestCompression
	default:
		return level
	}
}

func (klauspostBackend) deflate(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, mapLevel(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (klauspostBackend) inflate(compressed []byte, size int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out := make([]byte, 0, size)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// defaultBackend returns the backend used when a Writer or Reader is
// constructed without an explicit backend option.
func defaultBackend() backend { return klauspostBackend{} }
