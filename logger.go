// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import "fmt"

// LogLevel represents log severity.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFunc is a single logger function that handles all levels. The default
// is a no-op, matching DebugOn's silent-by-default behavior; a host
// application overrides it with SetLogger to route pdfcore's diagnostics
// into its own logging stack.
type LogFunc func(level LogLevel, msg string, keyvals ...interface{})

var logFunc LogFunc = func(LogLevel, string, ...interface{}) {}

// SetLogger installs f as the package-wide logger. Passing nil is a no-op.
func SetLogger(f LogFunc) {
	if f != nil {
		logFunc = f
	}
}

func logDebug(msg string, keyvals ...interface{}) { logFunc(LevelDebug, msg, keyvals...) }
func logInfo(msg string, keyvals ...interface{})  { logFunc(LevelInfo, msg, keyvals...) }
func logWarn(msg string, keyvals ...interface{})  { logFunc(LevelWarn, msg, keyvals...) }
func logError(msg string, keyvals ...interface{}) { logFunc(LevelError, msg, keyvals...) }

// traceMessages accumulates verbose diagnostics for later inspection instead
// of printing on every call, for use on hot paths (lexing, object
// resolution) where even a no-op logger call would add overhead if it had
// to format its arguments.
var traceMessages []string

// Trace appends msg to the trace log without evaluating a logger callback.
func Trace(msg string) {
	traceMessages = append(traceMessages, msg)
}

// Tracef is the formatted form of Trace.
func Tracef(format string, args ...interface{}) {
	traceMessages = append(traceMessages, fmt.Sprintf(format, args...))
}

// FlushTrace prints the accumulated trace log through the installed logger
// at Debug level and resets it.
func FlushTrace() {
	for _, msg := range traceMessages {
		logDebug(msg)
	}
	traceMessages = nil
}
