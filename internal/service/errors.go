package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrUnsupportedGrant   = errors.New("unsupported grant type")
	ErrNotFound           = errors.New("not found")
	ErrUpstream           = errors.New("upstream failure")
	ErrUnavailable        = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
)

// Error pairs a sentinel kind with a detail that is safe to return to the
// caller.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// UpstreamError is a collaborator failure with the status it maps to at
// the boundary. It wraps ErrUpstream.
type UpstreamError struct {
	Status int
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v (%d): %s: %v", ErrUpstream, e.Status, e.Detail, e.Err)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// StatusCode maps an error returned by the service to an HTTP status.
func StatusCode(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status
	}

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedGrant):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the caller-facing message for err. Errors without a
// public detail collapse to a generic message.
func Detail(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Detail
	}
	var detailed *Error
	if errors.As(err, &detailed) {
		return detailed.Detail
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, ErrUnauthenticated):
		return "Not authenticated"
	case errors.Is(err, ErrTokenExpired):
		return "Token has expired"
	case errors.Is(err, ErrTokenInvalid):
		return "Could not validate credentials"
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrConfiguration):
		return "Service unavailable"
	default:
		return "internal error"
	}
}
