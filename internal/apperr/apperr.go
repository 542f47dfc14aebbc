// Package apperr provides typed domain errors with codes, for components
// that need to report a machine-readable disposition (e.g. the HTTP
// shim's status mapping) without leaking internal error types.
//
// Named apperr rather than errors so call sites can still import the
// standard library's errors package unqualified for Is/As/Unwrap against
// sentinel errors such as os.ErrNotExist.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-exported for convenience at call sites that otherwise only need this
// package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeValidation        Code = "VALIDATION"
	CodeInternal          Code = "INTERNAL"
	CodeProbeFailed       Code = "PROBE_FAILED"
	CodeTranscodeFailed   Code = "TRANSCODE_FAILED"
	CodeMalformedRange    Code = "MALFORMED_RANGE"
	CodeRangeNotSatisfiable Code = "RANGE_NOT_SATISFIABLE"
	CodeUnknownBook       Code = "UNKNOWN_BOOK"
	CodeNoRootsConfigured Code = "NO_ROOTS_CONFIGURED"
)

// HTTPStatus maps a Code to an HTTP status: not found / unknown book ->
// 404; validation -> 400; range not satisfiable -> 416; every other code,
// CodeMalformedRange included, -> 500. A malformed Range header is not
// reported as an error by the stream assembler, which ignores it and
// serves the whole object with 200.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeUnknownBook:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case CodeNoRootsConfigured, CodeProbeFailed, CodeTranscodeFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a Code and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf attaches a code and formatted message to an underlying cause.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
