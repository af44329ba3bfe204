package eln

import (
	"errors"
	"fmt"
)

// Kind classifies upstream failures. Kinds are stable: the dispatcher maps
// them onto wire error codes and the audit trail records them verbatim.
type Kind string

const (
	// KindUnauthorized is a 401 that survived the one-shot re-authentication.
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden is an upstream 403. Never retried.
	KindForbidden Kind = "forbidden"

	// KindNotFound is an upstream 404. Never retried.
	KindNotFound Kind = "not_found"

	// KindRateLimited is a 429 that exhausted the retry budget.
	KindRateLimited Kind = "rate_limited"

	// KindUnavailable covers network failures, timeouts and 5xx responses
	// after retries and failover are exhausted.
	KindUnavailable Kind = "unavailable"

	// KindBadRequest is any other 4xx. Permanent, never retried.
	KindBadRequest Kind = "bad_request"

	// KindBadResponse marks a 2xx body that could not be parsed.
	KindBadResponse Kind = "bad_response"
)

// Error is a typed upstream error carrying a stable kind, the HTTP status
// when one was received, and the underlying cause.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError creates a typed upstream error.
func newError(kind Kind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or "" if err is not an upstream Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsForbidden checks if the error is a forbidden error.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsRateLimited checks if the error is a rate-limited error.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsUnavailable checks if the error is an unavailable error.
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// isTransient reports whether the error is eligible for endpoint failover.
func isTransient(err error) bool {
	k := KindOf(err)
	return k == KindUnavailable
}
