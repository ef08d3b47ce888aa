// Package bankerr defines the error kind taxonomy shared by the stores, the
// graph engine, and the facade, generalized from the workflow engine's own
// WorkflowError classification.
package bankerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP status mapping and session-failure
// promotion decisions.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindRouting    Kind = "routing_error"
	KindStorage    Kind = "storage_error"
	KindDownstream Kind = "downstream_error"
	KindClassifier Kind = "classifier_error"
)

// Error is a structured, wrapped error carrying a Kind and the operation
// that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) with the given kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error. For an
// unclassified error it returns an empty Kind and false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Fatal reports whether a session turn must be promoted to status=failed
// when this error occurs, per the propagation policy: only StorageError and
// RoutingError are fatal at the engine level.
func Fatal(kind Kind) bool {
	return kind == KindStorage || kind == KindRouting
}
