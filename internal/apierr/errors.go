// Package apierr implements the error taxonomy of §7: every component
// returns one of these kinds, and the HTTP layer maps kinds to status codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the taxonomy of error categories a component may return.
type Kind string

const (
	KindBadRequest     Kind = "BAD_REQUEST"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindForbidden      Kind = "FORBIDDEN"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindQuotaExceeded  Kind = "QUOTA_EXCEEDED"
	KindExternal       Kind = "EXTERNAL"
	KindInvariant      Kind = "INVARIANT"
)

var httpStatus = map[Kind]int{
	KindBadRequest:      http.StatusBadRequest,
	KindUnauthenticated: http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindQuotaExceeded:   http.StatusTooManyRequests,
	KindExternal:        http.StatusBadGateway,
	KindInvariant:       http.StatusInternalServerError,
}

// Error is the concrete error type carried across component boundaries.
type Error struct {
	Kind    Kind
	Reason  string // taxonomy sub-reason, e.g. "Replay", "ClockSkew", "UnknownKey"
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s/%s: %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code this error's kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func new(kind Kind, reason, msg string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg, Err: err}
}

func BadRequest(reason, msg string) *Error            { return new(KindBadRequest, reason, msg, nil) }
func Unauthenticated(reason, msg string) *Error       { return new(KindUnauthenticated, reason, msg, nil) }
func Forbidden(reason, msg string) *Error             { return new(KindForbidden, reason, msg, nil) }
func NotFound(reason, msg string) *Error              { return new(KindNotFound, reason, msg, nil) }
func Conflict(reason, msg string) *Error              { return new(KindConflict, reason, msg, nil) }
func QuotaExceeded(reason, msg string) *Error         { return new(KindQuotaExceeded, reason, msg, nil) }
func External(reason, msg string, err error) *Error   { return new(KindExternal, reason, msg, err) }
func Invariant(reason, msg string, err error) *Error  { return new(KindInvariant, reason, msg, err) }

// Wrap annotates a lower-level error as KindInvariant unless it already
// carries a taxonomy kind, in which case the original kind is preserved.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return &Error{Kind: apiErr.Kind, Reason: apiErr.Reason, Message: msg + ": " + apiErr.Message, Err: err}
	}
	return new(KindInvariant, "", msg, err)
}

// As reports whether err (or one it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
