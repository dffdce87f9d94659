// Package errtax is the shared error-kind taxonomy for the ingestion
// pipeline. It is deliberately shallow: a closed set of string kinds plus
// a classifier, so callers several layers removed from where an error
// originated (a worker loop deciding retry-vs-fail, a search handler
// deciding what status to report) don't need type assertions on concrete
// error types from deep in the call stack.
package errtax

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidArgument    Kind = "invalid_argument"
	Conflict           Kind = "conflict"
	TransientUpstream  Kind = "transient_upstream"
	PermanentUpstream  Kind = "permanent_upstream"
	CapabilityDisabled Kind = "capability_disabled"
	Cancelled          Kind = "cancelled"
	Internal           Kind = "internal"
)

// Error carries a Kind alongside a message, matching how callers in this
// codebase want to branch on error class without parsing strings.
type Error struct {
	Kind    Kind
	Message string
	Sub     error
}

func (e *Error) Error() string {
	if e.Sub != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Sub)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Sub }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, sub error) *Error {
	return &Error{Kind: kind, Message: message, Sub: sub}
}

// KindOf returns the Kind carried by err if it (or something it wraps) is
// an *Error, and Internal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Classify guesses a Kind for an error that did not originate as an
// *Error — e.g. a raw error surfaced from an HTTP client or exec.Cmd. It
// mirrors the substring-matching classifier the rest of this corpus uses
// for provider errors, adapted to this pipeline's upstream calls (HTTP OCR
// backends, poppler subprocesses, the fetcher's HTTP client).
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"), strings.Contains(msg, "context.canceled"):
		return Cancelled
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"), strings.Contains(msg, "no rows"):
		return NotFound
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "temporarily"), strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "429"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return TransientUpstream
	case strings.Contains(msg, "400"), strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "invalid"):
		return PermanentUpstream
	default:
		return Internal
	}
}

// Retryable reports whether a worker loop should retry an operation that
// failed with this Kind rather than mark it permanently failed.
func Retryable(k Kind) bool {
	switch k {
	case TransientUpstream, Internal:
		return true
	default:
		return false
	}
}
