// Package apierr defines the error taxonomy shared by every CodeRecoder
// store operation. Callers should switch on Kind rather than match error
// strings; Cause preserves the underlying wrapped error for diagnostics.
package apierr

import "github.com/pkg/errors"

// Kind identifies one of the error categories a store operation can fail with.
type Kind string

// The error taxonomy from the specification's error handling design.
const (
	NotActivated         Kind = "NotActivated"
	InvalidPath          Kind = "InvalidPath"
	NotFound             Kind = "NotFound"
	Corrupt              Kind = "Corrupt"
	NoBaseline           Kind = "NoBaseline"
	IoError              Kind = "IoError"
	ChangeDetectorFailed Kind = "ChangeDetectorFailed"
)

// Error is the structured error returned by every store operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a new Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new Error of the given kind, wrapping cause with pkg/errors
// so call-site context is preserved in the diagnostics channel.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}

	return &Error{Kind: kind, Message: message, Cause: errors.Wrap(cause, message)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// KindOf extracts the Kind carried by err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}
