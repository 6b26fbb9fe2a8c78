// Package backoff provides pluggable retry delay strategies and a bounded
// retry executor. All strategies are safe for concurrent use (they are
// stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential grows the delay geometrically with the attempt number.
// Delay = min(Initial * Factor^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy with the classic
// doubling factor.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Factor: 2, Max: maxDelay}
}

// NewExponentialFactor creates an exponential backoff with a custom growth
// factor. The polling controller uses factor 1.5.
func NewExponentialFactor(initial time.Duration, factor float64, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Factor: factor, Max: maxDelay}
}

// Delay returns Initial * Factor^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	factor := e.Factor
	if factor <= 0 {
		factor = 2
	}
	d := time.Duration(float64(e.Initial) * math.Pow(factor, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Schedule
// ──────────────────────────────────────────────────

// Schedule returns delays from a fixed per-attempt table. Attempts beyond
// the table reuse the final entry. The trigger orchestrator uses
// 1s, 3s, 5s.
type Schedule struct {
	Delays []time.Duration
}

// NewSchedule creates a fixed-schedule backoff strategy.
func NewSchedule(delays ...time.Duration) *Schedule {
	return &Schedule{Delays: delays}
}

// Delay returns the table entry for the attempt, or the last entry when the
// attempt number runs past the table. An empty table yields zero.
func (s *Schedule) Delay(attempt int) time.Duration {
	if len(s.Delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s.Delays) {
		return s.Delays[len(s.Delays)-1]
	}
	return s.Delays[attempt-1]
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many retries happen simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}
