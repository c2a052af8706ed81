package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpenHalfOpenClosed(t *testing.T) {
	reg := NewRegistry(Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		VolumeThreshold:  3,
		Timeout:          50 * time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		err := reg.Execute("srv1", func() error { return assertErr })
		require.Error(t, err)
	}
	require.Equal(t, StateOpen, reg.For("srv1").State())

	// Immediately rejected while open.
	err := reg.Execute("srv1", func() error { return nil })
	require.Error(t, err)

	time.Sleep(60 * time.Millisecond)

	// First call after timeout probes (half-open) and succeeds.
	err = reg.Execute("srv1", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, reg.For("srv1").State())

	// Second success closes the circuit.
	err = reg.Execute("srv1", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, reg.For("srv1").State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	reg := NewRegistry(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		VolumeThreshold:  1,
		Timeout:          10 * time.Millisecond,
	})

	_ = reg.Execute("srv2", func() error { return assertErr })
	require.Equal(t, StateOpen, reg.For("srv2").State())

	time.Sleep(20 * time.Millisecond)

	_ = reg.Execute("srv2", func() error { return assertErr })
	require.Equal(t, StateOpen, reg.For("srv2").State())
}

var assertErr = &testError{}

type testError struct{}

func (e *testError) Error() string { return "boom" }
