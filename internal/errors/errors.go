// Package errors defines the typed errors shared across repofetch.
//
// Every failure that crosses a package boundary carries a stable Kind
// string so callers, tests, and downstream tooling can branch on it
// without parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind represents stable error kinds for all failure modes
type Kind string

const (
	// ParseError indicates malformed file-spec or pattern syntax
	ParseError Kind = "PARSE_ERROR"
	// ResolutionMiss indicates a pattern or path matched nothing
	ResolutionMiss Kind = "RESOLUTION_MISS"
	// CloneTooLarge indicates the repository exceeds the single-repo ceiling
	CloneTooLarge Kind = "CLONE_TOO_LARGE"
	// CloneAuthFailed indicates the clone executor could not authenticate
	CloneAuthFailed Kind = "CLONE_AUTH_FAILED"
	// CloneNetworkError indicates the clone executor hit a transport failure
	CloneNetworkError Kind = "CLONE_NETWORK_ERROR"
	// CloneRefNotFound indicates the requested ref does not exist
	CloneRefNotFound Kind = "CLONE_REF_NOT_FOUND"
	// CloneExecutorFailure indicates any other clone executor failure
	CloneExecutorFailure Kind = "CLONE_EXECUTOR_FAILURE"
	// RangeOutOfBounds indicates a selection start beyond the content
	RangeOutOfBounds Kind = "RANGE_OUT_OF_BOUNDS"
	// TooLarge indicates a file exceeds the content size ceiling
	TooLarge Kind = "TOO_LARGE"
	// RemoteNotFound indicates the remote host has no such repo or path
	RemoteNotFound Kind = "REMOTE_NOT_FOUND"
	// RemoteRateLimited indicates the remote host throttled the request
	RemoteRateLimited Kind = "REMOTE_RATE_LIMITED"
	// RemoteAuthFailed indicates the remote host rejected credentials
	RemoteAuthFailed Kind = "REMOTE_AUTH_FAILED"
	// RemoteNetworkError indicates a remote host transport failure
	RemoteNetworkError Kind = "REMOTE_NETWORK_ERROR"
	// Timeout indicates a context deadline expired
	Timeout Kind = "TIMEOUT"
	// InvalidParameter indicates a bad tool or CLI argument
	InvalidParameter Kind = "INVALID_PARAMETER"
	// ConfigInvalid indicates configuration failed validation
	ConfigInvalid Kind = "CONFIG_INVALID"
	// Internal indicates an unexpected failure
	Internal Kind = "INTERNAL_ERROR"
)

// Error is the error type used across repofetch. Path carries the
// originating file spec or pattern for per-item failures inside a
// batch; it is empty for batch-level failures.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	cause   error
}

// New creates an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithPath records the originating spec/pattern on the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind from err, or Internal when err is not an
// *Error from this package. A nil err yields the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HasKind reports whether err carries the given kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsError converts err into an *Error, wrapping foreign errors as
// Internal so every failure surfaced to a caller has a stable kind.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(Internal, "unexpected error", err)
}

// cloneKinds are the kinds the orchestrator treats as recoverable by
// falling back from the clone path to the API path.
var cloneKinds = map[Kind]bool{
	CloneTooLarge:        true,
	CloneAuthFailed:      true,
	CloneNetworkError:    true,
	CloneRefNotFound:     true,
	CloneExecutorFailure: true,
}

// IsCloneError reports whether err is one of the clone failure kinds.
func IsCloneError(err error) bool {
	return cloneKinds[KindOf(err)]
}
