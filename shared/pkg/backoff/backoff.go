package backoff

import (
	"math/rand/v2"
	"time"
)

// Exponential returns base * 2^attempt clamped to [base, max].
// attempt is zero-based.
func Exponential(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	if max > 0 && base >= max {
		return max
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
		// overflow
		if d <= 0 {
			return max
		}
	}
	return d
}

// WithJitter spreads d over [d/2, d).
func WithJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(d-half)
}
