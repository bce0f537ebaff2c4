package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and branching.
type Code string

const (
	CodeValidation       Code = "validation"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeConflict         Code = "conflict"
	CodeNotFound         Code = "not_found"
	CodeGatewayError     Code = "gateway_error"
	CodeDuplicateRequest Code = "duplicate_request"
)

// Error is the single error type crossing service boundaries.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same code so callers can use errors.Is with a
// bare constructor result as the target.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newError(CodeValidation, format, args...) }
func Unauthorized(format string, args ...any) *Error {
	return newError(CodeUnauthorized, format, args...)
}
func Forbidden(format string, args ...any) *Error { return newError(CodeForbidden, format, args...) }
func Conflict(format string, args ...any) *Error  { return newError(CodeConflict, format, args...) }
func NotFound(format string, args ...any) *Error  { return newError(CodeNotFound, format, args...) }
func Duplicate(format string, args ...any) *Error {
	return newError(CodeDuplicateRequest, format, args...)
}

// Gateway wraps a transport failure from the payment provider.
func Gateway(err error, format string, args ...any) *Error {
	e := newError(CodeGatewayError, format, args...)
	e.Err = err
	return e
}

// Wrap attaches a cause to a classified error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	e := newError(code, format, args...)
	e.Err = err
	return e
}

// CodeOf extracts the code from err, or empty when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func IsConflict(err error) bool  { return IsCode(err, CodeConflict) }
func IsForbidden(err error) bool { return IsCode(err, CodeForbidden) }
func IsNotFound(err error) bool  { return IsCode(err, CodeNotFound) }
func IsGateway(err error) bool   { return IsCode(err, CodeGatewayError) }
