// +build !cgo

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import "github.com/pkg/errors"

// newLibdeflateEncoder fails when compiled without cgo. Unlike the teacher's
// NewWriterParams, which panics in this situation, this returns an error:
// spec.md §7 requires that no failure mode be silent, and a library
// constructor panicking on a build-tag mismatch is surprising for callers
// that can instead fall back to the default backend.
func newLibdeflateEncoder() (blockEncoder, error) {
	return nil, errors.New("bgzf: libdeflate backend requires cgo")
}
