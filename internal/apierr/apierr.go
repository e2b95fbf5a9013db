// Package apierr defines the coarse error kinds shared by the authorization
// core and the transports that render them.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindBadRequest
	KindPermissionDenied
	KindNotFound
	KindEncryption
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "authentication_failed"
	case KindBadRequest:
		return "bad_request"
	case KindPermissionDenied:
		return "insufficient_access"
	case KindNotFound:
		return "not_found"
	case KindEncryption:
		return "encryption_failure"
	case KindConflict:
		return "conflict"
	default:
		return "server_error"
	}
}

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a machine readable code and an optional detail that is
// safe to show to the caller. The cause is kept for server-side logs only.
type Error struct {
	Kind   Kind
	Code   string
	Detail string
	cause  error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrBadRequest       = &Error{Kind: KindBadRequest}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInternal         = &Error{Kind: KindInternal}
	ErrEncryption       = &Error{Kind: KindEncryption}
)

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = e.Kind.String()
	}
	if e.Detail == "" {
		return code
	}
	return fmt.Sprintf("%s: %s", code, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Body is the JSON payload written to callers.
type Body struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Public returns the caller-visible representation. Internal and encryption
// failures never expose their detail.
func (e *Error) Public() Body {
	code := e.Code
	if code == "" {
		code = e.Kind.String()
	}
	switch e.Kind {
	case KindInternal:
		return Body{Code: code, Detail: "Internal Server Error"}
	case KindEncryption:
		return Body{Code: code, Detail: "Encryption failed"}
	}
	detail := e.Detail
	if detail == "" {
		detail = defaultDetail(e.Kind)
	}
	return Body{Code: code, Detail: detail}
}

func defaultDetail(k Kind) string {
	switch k {
	case KindUnauthorized:
		return "Unauthorized"
	case KindBadRequest:
		return "Bad Request"
	case KindPermissionDenied:
		return "Insufficient access for the given operation."
	case KindNotFound:
		return "Entity not found"
	case KindConflict:
		return "Entity already exists"
	default:
		return "Internal Server Error"
	}
}

func Unauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

func BadRequest(code, detail string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Detail: detail}
}

func PermissionDenied() *Error {
	return &Error{Kind: KindPermissionDenied}
}

func NotFound() *Error {
	return &Error{Kind: KindNotFound}
}

func Conflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// Internal wraps an unexpected failure. The cause is only reachable through Unwrap.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, cause: cause}
}

// Encryption wraps a cryptographic failure without exposing its cause.
func Encryption(detail string) *Error {
	return &Error{Kind: KindEncryption, Detail: detail}
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
