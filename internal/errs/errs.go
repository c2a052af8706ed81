// Package errs implements the gateway's error taxonomy (spec §7): a fixed
// set of kinds, each mapping to an HTTP status at the external boundary,
// carried as structured data rather than as ad-hoc error strings.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind identifies one of the taxonomy's error categories.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindUnauthenticated Kind = "unauthenticated"
	KindRateLimited     Kind = "rate_limited"
	KindCircuitOpen     Kind = "circuit_open"
	KindUnavailable     Kind = "unavailable"
	KindUpstream        Kind = "upstream"
	KindTimeout         Kind = "timeout"
	KindConflict        Kind = "conflict"
	KindSecretDetected  Kind = "secret_detected"
	KindBudgetExceeded  Kind = "budget_exceeded"
	KindInternal        Kind = "internal"
)

var httpStatusByKind = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindNotFound:         http.StatusNotFound,
	KindPermissionDenied: http.StatusForbidden,
	KindUnauthenticated:  http.StatusUnauthorized,
	KindRateLimited:      http.StatusTooManyRequests,
	KindCircuitOpen:      http.StatusServiceUnavailable,
	KindUnavailable:      http.StatusServiceUnavailable,
	KindUpstream:         http.StatusInternalServerError,
	KindTimeout:          http.StatusGatewayTimeout,
	KindConflict:         http.StatusConflict,
	KindSecretDetected:   http.StatusConflict,
	KindBudgetExceeded:   http.StatusPaymentRequired,
	KindInternal:         http.StatusInternalServerError,
}

// GatewayError is the concrete error type carried through the system.
type GatewayError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// RetryAfter implements resilience.RetryAfterHint for the two kinds that
// carry a concrete wait hint; zero for everything else.
func (e *GatewayError) RetryAfter() time.Duration {
	switch v := e.Details["retry_after_ms"].(type) {
	case int64:
		return time.Duration(v) * time.Millisecond
	}
	if reset, ok := e.Details["minute_reset_at"].(time.Time); ok {
		if d := time.Until(reset); d > 0 {
			return d
		}
	}
	return 0
}

// WithDetail attaches a detail field and returns the error for chaining.
func (e *GatewayError) WithDetail(key string, value any) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds a GatewayError of the given kind.
func New(kind Kind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, HTTPStatus: httpStatusByKind[kind]}
}

// Wrap builds a GatewayError of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, HTTPStatus: httpStatusByKind[kind], Err: err}
}

// Constructors per kind, mirroring the teacher's errors.go helper style.

func Validation(field, reason string) *GatewayError {
	return New(KindValidation, "invalid input").WithDetail("field", field).WithDetail("reason", reason)
}

func NotFound(resource, id string) *GatewayError {
	return New(KindNotFound, "resource not found").WithDetail("resource", resource).WithDetail("id", id)
}

func PermissionDenied(message string) *GatewayError {
	return New(KindPermissionDenied, message)
}

func Unauthenticated(message string) *GatewayError {
	return New(KindUnauthenticated, message)
}

// RateLimited carries the reset hints spec.md's data model requires.
func RateLimited(remainingPerMinute, remainingPerDay int64, minuteResetAt, dayResetAt time.Time) *GatewayError {
	return New(KindRateLimited, "rate limit exceeded").
		WithDetail("remaining_per_minute", remainingPerMinute).
		WithDetail("remaining_per_day", remainingPerDay).
		WithDetail("minute_reset_at", minuteResetAt).
		WithDetail("day_reset_at", dayResetAt)
}

// CircuitOpen carries the retry-after hint.
func CircuitOpen(serverID string, retryAfter time.Duration) *GatewayError {
	return New(KindCircuitOpen, "circuit breaker is open").
		WithDetail("server_id", serverID).
		WithDetail("retry_after_ms", retryAfter.Milliseconds())
}

// ServerUnavailable reports a Pool miss: the server is not currently
// connected (spec §4.2's dispatch step: "if absent, return a
// server-unavailable error").
func ServerUnavailable(serverID string) *GatewayError {
	return New(KindUnavailable, "server is not connected").WithDetail("server_id", serverID)
}

func Upstream(message string, err error) *GatewayError {
	return Wrap(KindUpstream, message, err)
}

func Timeout(operation string) *GatewayError {
	return New(KindTimeout, "operation timed out").WithDetail("operation", operation)
}

func Conflict(message string) *GatewayError {
	return New(KindConflict, message)
}

// SecretDetected lists the masked detections that blocked a write.
func SecretDetected(paths []string) *GatewayError {
	return New(KindSecretDetected, "secret material detected in workflow definition").WithDetail("paths", paths)
}

func BudgetExceeded(scope string, limit, used int64) *GatewayError {
	return New(KindBudgetExceeded, "budget exceeded").
		WithDetail("scope", scope).
		WithDetail("limit", limit).
		WithDetail("used", used)
}

func Internal(message string, err error) *GatewayError {
	return Wrap(KindInternal, message, err)
}

// Helpers

// As extracts a *GatewayError from an error chain.
func As(err error) (*GatewayError, bool) {
	var ge *GatewayError
	ok := errors.As(err, &ge)
	return ge, ok
}

// KindOf returns the Kind of err, or KindInternal if err is not a GatewayError.
func KindOf(err error) Kind {
	if ge, ok := As(err); ok {
		return ge.Kind
	}
	return KindInternal
}

// HTTPStatusFor returns the external HTTP status code for err.
func HTTPStatusFor(err error) int {
	if ge, ok := As(err); ok {
		return ge.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Recoverable reports whether a step-level retry loop should keep retrying
// this error kind (rate limit / circuit open, per spec §7's propagation policy).
func Recoverable(err error) bool {
	k := KindOf(err)
	return k == KindRateLimited || k == KindCircuitOpen
}
