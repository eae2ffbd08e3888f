// Package fault defines the error taxonomy shared by the pipeline services.
//
// Every failure that can route a payload to the errors lane carries a Kind;
// the worker loop and the raw processor match on the Kind instead of on
// concrete error types.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure, orthogonal to the transport it
// happened on.
type Kind string

const (
	// DecodeError marks a malformed wire frame.
	DecodeError Kind = "decode_error"
	// SchemaNotFound marks an Iglu reference no registry could resolve.
	SchemaNotFound Kind = "schema_not_found"
	// InvalidSchema marks a schema that itself does not compile or whose
	// meta-schema is not honoured.
	InvalidSchema Kind = "invalid_schema"
	// ValidationFailed marks data that failed schema validation.
	ValidationFailed Kind = "validation_failed"
	// MalformedInput marks unparsable query strings, bodies or events.
	MalformedInput Kind = "malformed_input"
	// OversizedItem marks a single payload item that cannot fit a frame.
	OversizedItem Kind = "oversized_item"
	// OversizedEnvelope marks a payload whose envelope alone exceeds the
	// frame limit.
	OversizedEnvelope Kind = "oversized_envelope"
	// Transient marks a network or IO failure against a remote
	// collaborator; the request continues without the enrichment.
	Transient Kind = "transient"
	// Fatal marks conditions the process cannot continue from.
	Fatal Kind = "fatal"
)

// Error is a tagged pipeline error.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a tagged error with the given kind and reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Errorf is New with a formatted reason.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error.
func Wrap(kind Kind, err error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf extracts the Kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
