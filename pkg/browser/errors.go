package browser

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable failure category surfaced to callers.
// The HTTP layer maps kinds onto status codes; the strings themselves are
// part of the API.
type ErrorKind string

const (
	KindCapabilityNotSupported   ErrorKind = "CapabilityNotSupported"
	KindProviderNotFound         ErrorKind = "ProviderNotFound"
	KindProviderNotBrowserBacked ErrorKind = "ProviderNotBrowserBacked"
	KindSessionNotReady          ErrorKind = "SessionNotReady"
	KindSessionNotFound          ErrorKind = "SessionNotFound"
	KindSpawnTimeout             ErrorKind = "SpawnTimeout"
	KindLocatorNotFound          ErrorKind = "LocatorNotFound"
	KindLocatorAmbiguous         ErrorKind = "LocatorAmbiguous"
	KindNavigationTimeout        ErrorKind = "NavigationTimeout"
	KindExecutionTimeout         ErrorKind = "ExecutionTimeout"
	KindDomainBlocked            ErrorKind = "DomainBlocked"
	KindInvalidToolCall          ErrorKind = "InvalidToolCall"
	KindUpstreamProviderError    ErrorKind = "UpstreamProviderError"
)

// Error is a categorized orchestration failure.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a categorized error with a formatted detail string.
func NewError(kind ErrorKind, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, v...)}
}

// WrapError creates a categorized error around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, v...), Err: err}
}

// KindOf extracts the ErrorKind from err, or empty if err is not a
// categorized error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
