package scm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies platform API failures so callers can decide how
// to react without inspecting provider-specific status codes.
type ErrorKind string

const (
	// KindAuthFailed means the stored credential was rejected.
	KindAuthFailed ErrorKind = "auth_failed"

	// KindNotFound means the resource does not exist or the credential
	// cannot see it.
	KindNotFound ErrorKind = "not_found"

	// KindConflict means the operation collided with existing state,
	// e.g. a branch that already exists.
	KindConflict ErrorKind = "conflict"

	// KindRateLimited means the provider throttled us. RetryAfter holds
	// the provider's suggested wait when it sent one.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTransient covers 5xx responses and network failures. Safe to
	// retry.
	KindTransient ErrorKind = "transient"

	// KindPermanent covers everything else. Retrying will not help.
	KindPermanent ErrorKind = "permanent"
)

// Error is the normalized error type returned by all platform clients.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("scm %s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("scm %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Retryable reports whether the scan pipeline may retry the operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

// KindOf returns the kind of an scm error, or KindPermanent for
// anything else.
func KindOf(err error) ErrorKind {
	var scmErr *Error
	if errors.As(err, &scmErr) {
		return scmErr.Kind
	}
	return KindPermanent
}

// IsRetryable reports whether err is an scm error worth retrying.
func IsRetryable(err error) bool {
	var scmErr *Error
	return errors.As(err, &scmErr) && scmErr.Retryable()
}

// IsNotFound reports whether err is a not-found scm error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsAuthFailed reports whether err is an authentication scm error.
func IsAuthFailed(err error) bool {
	return KindOf(err) == KindAuthFailed
}

// errorFromResponse classifies a non-2xx provider response. It reads a
// bounded amount of the body for the error message.
func errorFromResponse(resp *http.Response, op string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	message := fmt.Sprintf("%s: status %d", op, resp.StatusCode)
	if len(body) > 0 {
		message = fmt.Sprintf("%s: %s", message, string(body))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Some providers signal throttling with 403 + rate limit headers.
		if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining == "0" {
			return rateLimitError(resp, message)
		}
		return newError(KindAuthFailed, message)
	case resp.StatusCode == http.StatusNotFound:
		return newError(KindNotFound, message)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return newError(KindConflict, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return rateLimitError(resp, message)
	case resp.StatusCode >= 500:
		return newError(KindTransient, message)
	default:
		return newError(KindPermanent, message)
	}
}

func rateLimitError(resp *http.Response, message string) *Error {
	e := newError(KindRateLimited, message)
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if e.RetryAfter == 0 {
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
				if until := time.Until(time.Unix(ts, 0)); until > 0 {
					e.RetryAfter = until
				}
			}
		}
	}
	return e
}

// transportError wraps network-level failures as transient.
func transportError(op string, err error) *Error {
	return wrapError(KindTransient, op, err)
}
