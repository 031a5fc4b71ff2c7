// Package apperr is the error taxonomy shared by the live-session core and its REST client.
package apperr

import (
	"errors"
)

// Kind is a machine-readable error class.
type Kind string

const (
	KindUnknown      Kind = "UNKNOWN"
	KindAuthRequired Kind = "AUTH_REQUIRED"
	KindAccessDenied Kind = "ACCESS_DENIED"
	KindNetwork      Kind = "NETWORK_ERROR"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindServer       Kind = "SERVER_ERROR"
)

// Terminal reports whether errors of this kind must not be retried.
func (k Kind) Terminal() bool {
	return k == KindAuthRequired || k == KindAccessDenied || k == KindValidation
}

// Error carries a Kind plus an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrAccessDenied) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrAuthRequired = &Error{Kind: KindAuthRequired, Message: "authentication required"}
	ErrAccessDenied = &Error{Kind: KindAccessDenied, Message: "access denied"}
	ErrNetwork      = &Error{Kind: KindNetwork, Message: "network error"}
	ErrValidation   = &Error{Kind: KindValidation, Message: "validation error"}
	ErrServer       = &Error{Kind: KindServer, Message: "server error"}
)

func AuthRequired(msg string) *Error { return &Error{Kind: KindAuthRequired, Message: msg} }

func AccessDenied(msg string) *Error { return &Error{Kind: KindAccessDenied, Message: msg} }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func Network(msg string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Cause: cause}
}

func Server(msg string, cause error) *Error {
	return &Error{Kind: KindServer, Message: msg, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
