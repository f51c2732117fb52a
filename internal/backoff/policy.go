// Package backoff provides bounded retry helpers with fixed or exponential
// delays.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes the delay before each retry.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay. Zero means no cap.
	Max time.Duration
	// Factor multiplies the delay per attempt. Values <= 1 give a fixed delay.
	Factor float64
	// Jitter adds up to Jitter*delay of random extra wait, 0.0 to 1.0.
	Jitter float64
}

// Fixed returns a policy that always waits d.
func Fixed(d time.Duration) Policy {
	return Policy{Initial: d, Max: d, Factor: 1}
}

// Exponential returns a doubling policy starting at initial and capped at max,
// with 10% jitter.
func Exponential(initial, max time.Duration) Policy {
	return Policy{Initial: initial, Max: max, Factor: 2, Jitter: 0.1}
}

// Delay returns the wait before retry number attempt (1-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

func (p Policy) delayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	base := float64(p.Initial) * math.Pow(factor, exp)
	total := base + base*p.Jitter*randomValue
	if p.Max > 0 {
		total = math.Min(float64(p.Max), total)
	}
	return time.Duration(math.Round(total))
}
