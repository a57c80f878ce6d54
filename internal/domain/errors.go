package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transport layers can map it to a status code.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindInvalidRequest  Kind = "invalid_request"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

// Error carries a failure kind together with the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error with a human-readable message.
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an underlying failure without losing its cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified with the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
