// Package otel provides structured observability for ragdeck.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Gateway events
	KindAPIRequest EventKind = "api.request"
	KindAPIError   EventKind = "api.error"

	// Project registry events
	KindProjectList   EventKind = "project.list"
	KindProjectSwitch EventKind = "project.switch"
	KindProjectClear  EventKind = "project.clear"

	// Index lifecycle events
	KindIndexStart   EventKind = "index.start"
	KindIndexReject  EventKind = "index.reject"
	KindIndexSettled EventKind = "index.settled"
	KindIndexError   EventKind = "index.error"

	// Model selector events
	KindModelDecision EventKind = "model.decision"
	KindModelChange   EventKind = "model.change"

	// Query events
	KindQueryStart    EventKind = "query.start"
	KindQueryComplete EventKind = "query.complete"
	KindQueryStale    EventKind = "query.stale"
	KindQueryReject   EventKind = "query.reject"

	// Store events
	KindStoreError EventKind = "store.error"

	// UI events
	KindKeyPress EventKind = "ui.key"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Trace events
	KindMsgReceived EventKind = "trace.msg_received"
	KindMsgHandled  EventKind = "trace.msg_handled"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "api", "registry", "indexer", "query", "ui", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	RequestID string         `json:"rid,omitempty"`        // X-Request-ID sent to the backend
	JobID     string         `json:"job,omitempty"`        // index job correlation ID
	Seq       uint64         `json:"seq,omitempty"`        // query sequence number
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Status    int            `json:"status,omitempty"`     // HTTP status code
	Count     int            `json:"count,omitempty"`
	Path      string         `json:"path,omitempty"`  // project path
	Model     string         `json:"model,omitempty"` // embedding model
	Query     string         `json:"query,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
