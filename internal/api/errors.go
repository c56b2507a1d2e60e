package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure for display and handling.
type Kind int

const (
	// KindNetwork: the request never produced a response (refused, timeout, cancelled).
	KindNetwork Kind = iota + 1
	// KindServer: the backend answered with an error status or an unreadable body.
	KindServer
	// KindValidation: a client-side precondition failed before any request was made.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// MsgNetwork is the displayable message for every KindNetwork error.
const MsgNetwork = "could not reach server"

// Error is the single error type surfaced by the gateway and the session
// layer. Error() returns only the displayable message; Op, Status and the
// wrapped cause are kept for logs and errors.Is.
type Error struct {
	Kind    Kind
	Op      string // "GET /projects", or a session operation name
	Status  int    // HTTP status for KindServer
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func networkError(op string, cause error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: MsgNetwork, Err: cause}
}

// serverError extracts the message from an error body the way the backend
// writes them: {"detail": "..."}, FastAPI's {"detail": [{"msg": ...}]}, or
// {"message": "..."}. Falls back to the HTTP status text.
func serverError(op string, status int, body []byte) *Error {
	msg := extractMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = fmt.Sprintf("status %d", status)
		}
	}
	return &Error{Kind: KindServer, Op: op, Status: status, Message: msg}
}

func extractMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := detailMessage(payload.Detail); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Message)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsNetwork reports whether err is a KindNetwork *Error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsServer reports whether err is a KindServer *Error.
func IsServer(err error) bool { return KindOf(err) == KindServer }

// IsValidation reports whether err is a KindValidation *Error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// Message returns the displayable message for any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
