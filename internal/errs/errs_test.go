package errs

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConstructorsSetHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, Validation("name", "required").HTTPStatus)
	require.Equal(t, http.StatusNotFound, NotFound("server", "srv-1").HTTPStatus)
	require.Equal(t, http.StatusForbidden, PermissionDenied("admin key required").HTTPStatus)
	require.Equal(t, http.StatusUnauthorized, Unauthenticated("missing key").HTTPStatus)
	require.Equal(t, http.StatusConflict, Conflict("name already in use").HTTPStatus)
	require.Equal(t, http.StatusConflict, SecretDetected([]string{"$.steps[0].config.params.access_key"}).HTTPStatus)
	require.Equal(t, http.StatusPaymentRequired, BudgetExceeded("tenant", 100, 150).HTTPStatus)
	require.Equal(t, http.StatusInternalServerError, Internal("boom", nil).HTTPStatus)
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Upstream("call failed", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
}

func TestAsAndKindOfRoundTrip(t *testing.T) {
	err := NotFound("workflow", "wf-1")

	ge, ok := As(err)
	require.True(t, ok)
	require.Equal(t, KindNotFound, ge.Kind)
	require.Equal(t, KindNotFound, KindOf(err))

	require.Equal(t, KindInternal, KindOf(errors.New("plain error")))
}

func TestHTTPStatusForFallsBackToInternalServerError(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFor(errors.New("plain error")))
	require.Equal(t, http.StatusTooManyRequests, HTTPStatusFor(RateLimited(0, 10, time.Now(), time.Now())))
}

func TestRecoverableOnlyRateLimitedAndCircuitOpen(t *testing.T) {
	require.True(t, Recoverable(RateLimited(0, 0, time.Now(), time.Now())))
	require.True(t, Recoverable(CircuitOpen("srv-1", time.Second)))
	require.False(t, Recoverable(Validation("name", "required")))
	require.False(t, Recoverable(errors.New("plain error")))
}

func TestCircuitOpenRetryAfterReflectsConfiguredDelay(t *testing.T) {
	err := CircuitOpen("srv-1", 2*time.Second)
	require.Equal(t, 2*time.Second, err.RetryAfter())
}

func TestRateLimitedRetryAfterUsesMinuteResetWhenInFuture(t *testing.T) {
	reset := time.Now().Add(5 * time.Second)
	err := RateLimited(0, 10, reset, time.Now().Add(time.Hour))

	require.InDelta(t, 5*time.Second, err.RetryAfter(), float64(200*time.Millisecond))
}

func TestWithDetailIsChainable(t *testing.T) {
	err := New(KindValidation, "bad input").WithDetail("field", "name").WithDetail("reason", "required")

	require.Equal(t, "name", err.Details["field"])
	require.Equal(t, "required", err.Details["reason"])
}
