// Package monitoring holds the process-wide diagnostic log streams.
//
// Three streams are kept apart so that operators can route them separately:
// ops for actionable warnings and errors, diag for day-to-day context, and
// trace for per-cycle telemetry. A nil writer disables the stream.
package monitoring

import (
	"io"
	"log"
	"sync"
)

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the ops, diag and trace streams.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger("[ops] ", ops)
	diagLogger = newLogger("[diag] ", diag)
	traceLogger = newLogger("[trace] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func printf(l **log.Logger, format string, args ...interface{}) {
	mu.RLock()
	logger := *l
	mu.RUnlock()
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// Opsf logs to the ops stream (actionable warnings, errors, data loss).
func Opsf(format string, args ...interface{}) {
	printf(&opsLogger, format, args...)
}

// Diagf logs to the diag stream (startup context, skipped cycles).
func Diagf(format string, args ...interface{}) {
	printf(&diagLogger, format, args...)
}

// Tracef logs to the trace stream (per-cycle telemetry).
func Tracef(format string, args ...interface{}) {
	printf(&traceLogger, format, args...)
}

// Logger adapts a stream to the Printf-style logger interface expected by
// third-party packages such as golang-migrate.
type Logger struct {
	Prefix string
	Trace  bool
}

// Printf writes to the diag stream, or the trace stream when Trace is set.
func (l Logger) Printf(format string, v ...interface{}) {
	if l.Trace {
		Tracef(l.Prefix+format, v...)
		return
	}
	Diagf(l.Prefix+format, v...)
}

// Verbose reports whether the caller should emit its chatty messages.
func (l Logger) Verbose() bool { return l.Trace }
