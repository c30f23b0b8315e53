package client

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseBackoff = 250 * time.Millisecond
	DefaultMaxBackoff  = 5 * time.Second
)

// Backoff returns the wait before retry number attempt (starting at 1):
// base doubled per attempt, capped at max, plus up to 50% jitter.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if max < base {
		max = base
	}
	exp := base
	for i := 1; i < attempt && exp < max; i++ {
		exp *= 2
	}
	if exp > max {
		exp = max
	}
	jitter := time.Duration(rand.Int64N(int64(exp/2) + 1))
	return exp + jitter
}
