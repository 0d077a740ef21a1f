package services

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeNotFound     ErrorType = "NOT_FOUND"
	ErrTypeForbidden    ErrorType = "FORBIDDEN"
	ErrTypeValidation   ErrorType = "VALIDATION"
	ErrTypeInvalidState ErrorType = "INVALID_STATE"
)

// Error is a client-facing failure of a chat operation.
type Error struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels below regardless of operation or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Operation == "" && t.Type == e.Type
}

// Kind sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Type: ErrTypeNotFound, Message: "not found"}
	ErrForbidden    = &Error{Type: ErrTypeForbidden, Message: "forbidden"}
	ErrValidation   = &Error{Type: ErrTypeValidation, Message: "validation failed"}
	ErrInvalidState = &Error{Type: ErrTypeInvalidState, Message: "invalid state"}
)

func NewNotFoundError(operation, msg string, cause error) *Error {
	return &Error{Type: ErrTypeNotFound, Operation: operation, Message: msg, Cause: cause}
}

func NewForbiddenError(operation, msg string) *Error {
	return &Error{Type: ErrTypeForbidden, Operation: operation, Message: msg}
}

func NewValidationError(operation, msg string) *Error {
	return &Error{Type: ErrTypeValidation, Operation: operation, Message: msg}
}

func NewInvalidStateError(operation, msg string, cause error) *Error {
	return &Error{Type: ErrTypeInvalidState, Operation: operation, Message: msg, Cause: cause}
}

// TypeOf returns the ErrorType carried by err, or "" for infrastructure errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// MessageOf returns the client-safe message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
