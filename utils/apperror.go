package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so handlers can map them to transport codes.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindConflict          ErrorKind = "CONFLICT"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindForbidden         ErrorKind = "FORBIDDEN"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	KindUpstreamFailure   ErrorKind = "UPSTREAM_FAILURE"
	KindInternal          ErrorKind = "INTERNAL"
)

// AppError is the error type returned by the service layer.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithCode attaches a machine readable sub-code (e.g. USER_LIMIT_EXCEEDED).
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func newAppError(kind ErrorKind, err error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *AppError {
	return newAppError(KindValidation, nil, format, args...)
}

func Conflict(format string, args ...any) *AppError {
	return newAppError(KindConflict, nil, format, args...)
}

func NotFound(format string, args ...any) *AppError {
	return newAppError(KindNotFound, nil, format, args...)
}

func Forbidden(format string, args ...any) *AppError {
	return newAppError(KindForbidden, nil, format, args...)
}

func InvalidTransition(format string, args ...any) *AppError {
	return newAppError(KindInvalidTransition, nil, format, args...)
}

func Upstream(err error, format string, args ...any) *AppError {
	return newAppError(KindUpstreamFailure, err, format, args...)
}

func Internal(err error, format string, args ...any) *AppError {
	return newAppError(KindInternal, err, format, args...)
}

// KindOf returns the kind of the first AppError in the chain, or INTERNAL.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// CodeOf returns the sub-code of the first AppError in the chain.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
