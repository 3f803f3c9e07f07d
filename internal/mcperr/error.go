// Package mcperr provides the structured error taxonomy shared by the
// dispatcher, session layer, and transports. A single CoreError type carries
// a Kind tag that the dispatcher maps to a JSON-RPC error code at the
// boundary, rather than string-matching Error() text.
package mcperr

import (
	"errors"
	"fmt"
)

// Kind classifies a CoreError for boundary mapping (see Code).
type Kind string

const (
	NotFound        Kind = "not-found"
	ValidationError Kind = "validation-error"
	ToolTimeout     Kind = "tool-timeout"
	TransportError  Kind = "transport-error"
	RequestTimeout  Kind = "request-timeout"
	ClientError     Kind = "client-error"
	InternalError   Kind = "internal-error"
)

// JSON-RPC 2.0 standard error codes used throughout the core.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// CoreError is the single error type produced by core components. Cause
// supports one level of wrapping via Unwrap, enabling errors.Is/As.
type CoreError struct {
	Kind    Kind
	Message string
	// RPCCode and RPCData are populated for ClientError, carrying the
	// peer-reported error response verbatim.
	RPCCode int
	RPCData any
	Cause   error
}

// New constructs a CoreError of the given kind.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Newf formats a CoreError message.
func Newf(kind Kind, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a CoreError of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// NewClientError constructs the error raised when a peer answers a
// server-initiated request with a JSON-RPC error object.
func NewClientError(code int, message string, data any) *CoreError {
	return &CoreError{Kind: ClientError, Message: message, RPCCode: code, RPCData: data}
}

func (e *CoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *CoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a CoreError with the same Kind, allowing
// callers to write errors.Is(err, mcperr.New(mcperr.NotFound, "")).
func (e *CoreError) Is(target error) bool {
	var other *CoreError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Code maps a Kind to its JSON-RPC wire code per the error handling design.
// ClientError reports the code carried from the originating peer response.
func Code(err error) int {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return CodeInternalError
	}
	switch ce.Kind {
	case NotFound:
		return CodeMethodNotFound
	case ValidationError:
		return CodeInvalidParams
	case ToolTimeout, InternalError:
		return CodeInternalError
	case ClientError:
		return ce.RPCCode
	default:
		return CodeInternalError
	}
}

// KindOf extracts the Kind of err, defaulting to InternalError for errors
// that are not a *CoreError.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return InternalError
}
