// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import "v.io/x/lib/vlog"

// Logger is the diagnostic collaborator injected into a Writer, Reader,
// ParallelWriter, or ParallelReader. It is never a package-level singleton:
// every constructor accepts one explicitly (or falls back to nopLogger),
// following the same "no global state" rule this package applies to
// compression level, thread count, and DEFLATE backend selection.
type Logger interface {
	// Warnf reports a condition that does not fail the current operation.
	// A missing EOF marker is not reported here: Reader and BuildGZI fail
	// with ErrTruncatedFile instead.
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...interface{}) {}

// NopLogger discards every message. It is the default Logger when none is
// supplied.
func NopLogger() Logger { return nopLogger{} }

type vlogLogger struct{}

func (vlogLogger) Warnf(format string, args ...interface{}) {
	vlog.VI(1).Infof(format, args...)
}

// VLogger adapts v.io/x/lib/vlog to the Logger interface.
func VLogger() Logger { return vlogLogger{} }
