package rag

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure for the service contract.
type ErrorKind string

const (
	// KindValidation marks malformed input rejected before any external call.
	KindValidation ErrorKind = "validation"
	// KindUpstream marks an unreachable or erroring collaborator. Not retried.
	KindUpstream ErrorKind = "upstream"
	// KindInternal marks everything else.
	KindInternal ErrorKind = "internal"
)

// Error is the structured failure returned by the pipeline.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and message.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind, defaulting to internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func upstream(message string, err error) *Error {
	return NewError(KindUpstream, message, err)
}
