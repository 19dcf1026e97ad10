// Package logging provides the operator-facing log handle threaded through
// every pipeline. Messages go to stderr; when a sink is attached they are
// echoed into the staging store's tool_log table so a migration run leaves
// an auditable trail next to the data it staged.
package logging

import (
	"fmt"
	"io"
	"os"
)

// Sink receives a copy of every logged message. The staging store
// implements it.
type Sink interface {
	AppendLog(level, message string)
}

// Log writes leveled messages. The zero value is not usable; construct
// with New and pass the handle down explicitly.
type Log struct {
	out     io.Writer
	verbose bool
	sink    Sink
}

// New creates a log writing to stderr. Trace output is emitted only when
// verbose is set (or the BACKMIG_DEBUG environment variable is non-empty).
func New(verbose bool) *Log {
	return &Log{
		out:     os.Stderr,
		verbose: verbose || os.Getenv("BACKMIG_DEBUG") != "",
	}
}

// NewWriter creates a log writing to w; used by tests.
func NewWriter(w io.Writer, verbose bool) *Log {
	return &Log{out: w, verbose: verbose}
}

// Attach sets the sink receiving log echoes. Passing nil detaches.
func (l *Log) Attach(sink Sink) {
	l.sink = sink
}

func (l *Log) emit(level, msg string) {
	fmt.Fprintf(l.out, "%s: %s\n", level, msg)
	if l.sink != nil {
		l.sink.AppendLog(level, msg)
	}
}

// Trace logs verbose-only detail.
func (l *Log) Trace(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.emit("trace", fmt.Sprintf(format, args...))
}

func (l *Log) Info(format string, args ...interface{}) {
	l.emit("info", fmt.Sprintf(format, args...))
}

func (l *Log) Warn(format string, args ...interface{}) {
	l.emit("warn", fmt.Sprintf(format, args...))
}

func (l *Log) Error(format string, args ...interface{}) {
	l.emit("error", fmt.Sprintf(format, args...))
}
