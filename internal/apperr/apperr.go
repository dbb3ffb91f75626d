// Package apperr defines the error kinds surfaced at the HTTP boundary and
// their status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the gateway.
type Kind int

const (
	// KindUpstream covers container-engine, subprocess and orchestration failures.
	KindUpstream Kind = iota
	// KindAuth covers missing, expired or invalid sessions and bad credentials.
	KindAuth
	// KindValidation covers malformed names, empty commands and bad bodies.
	KindValidation
	// KindCapacity is returned when the terminal-session cap is reached.
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	default:
		return "upstream"
	}
}

// Error carries a Kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUpstream.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindCapacity:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
