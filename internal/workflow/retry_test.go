package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGeometricBackoffDoublesPerAttempt(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, geometricBackoff(100, 1))
	require.Equal(t, 200*time.Millisecond, geometricBackoff(100, 2))
	require.Equal(t, 400*time.Millisecond, geometricBackoff(100, 3))
	require.Equal(t, 800*time.Millisecond, geometricBackoff(100, 4))
}

func TestGeometricBackoffZeroBaseStaysZero(t *testing.T) {
	require.Equal(t, time.Duration(0), geometricBackoff(0, 3))
}
