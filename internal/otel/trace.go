package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is read from the UI goroutine and flipped by tests.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("RAGDECK_TRACE") != "")
}

// TraceEnabled reports whether RAGDECK_TRACE is set (or tracing was
// switched on through the config file).
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// EnableTrace turns per-message trace events on for the rest of the process.
func EnableTrace() {
	traceEnabled.Store(true)
}

func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
