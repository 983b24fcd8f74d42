// Package errors provides the application error type shared across layers.
// Every error carries an HTTP status, a stable machine-readable reason code
// and a human-readable message, so handlers can map service failures to
// transport responses without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// UnknownCode is the reason used for errors that are not *Error values.
const UnknownCode = "INTERNAL_ERROR"

// UnknownMessage is returned to clients when the real cause must stay hidden.
const UnknownMessage = "internal server error"

// Error is the application error. Code is an HTTP status, Reason a stable
// upper-snake identifier consumed by API clients.
type Error struct {
	Code     int               `json:"code"`
	Reason   string            `json:"reason"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on reason code, ignoring message and metadata.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Reason == e.Reason
	}
	return false
}

// WithMetadata returns a copy carrying the given metadata.
func (e *Error) WithMetadata(md map[string]string) *Error {
	out := *e
	out.Metadata = md
	return &out
}

// WithCause returns a copy wrapping the given cause.
func (e *Error) WithCause(err error) *Error {
	out := *e
	out.cause = err
	return &out
}

// New creates an application error with the given HTTP status, reason and message.
func New(code int, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// Newf creates an application error with a formatted message.
func Newf(code int, reason, format string, args ...any) *Error {
	return New(code, reason, fmt.Sprintf(format, args...))
}

func BadRequest(reason, message string) *Error {
	return New(http.StatusBadRequest, reason, message)
}

func Unauthorized(reason, message string) *Error {
	return New(http.StatusUnauthorized, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(http.StatusForbidden, reason, message)
}

func NotFound(reason, message string) *Error {
	return New(http.StatusNotFound, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(http.StatusConflict, reason, message)
}

func Internal(reason, message string) *Error {
	return New(http.StatusInternalServerError, reason, message)
}

// FromError converts any error to *Error. Non-application errors become
// opaque 500s so internals never leak to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    http.StatusInternalServerError,
		Reason:  UnknownCode,
		Message: UnknownMessage,
		cause:   err,
	}
}

// Code returns the reason code of an error, or UnknownCode for foreign errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Reason
}

// HTTPStatus returns the HTTP status of an error, or 500 for foreign errors.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).Code
}
