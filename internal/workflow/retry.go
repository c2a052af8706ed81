package workflow

import (
	"math"
	"time"
)

// geometricBackoff computes a step's wait before attempt N+1, per spec
// §4.3's retry formula: backoffMs * 2^(attempt-1). attempt is 1-indexed,
// the attempt that just failed.
func geometricBackoff(backoffMs int64, attempt int) time.Duration {
	return time.Duration(float64(backoffMs)*math.Pow(2, float64(attempt-1))) * time.Millisecond
}
