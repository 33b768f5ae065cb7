// Package backoff computes retry delays for rescheduled outbox events.
//
// A Strategy maps a retry attempt number to the delay before the event
// becomes claimable again. Strategies are plain functions, stateless and
// safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy returns the delay before retry attempt n. Attempt 1 is the
// first retry after the initial failure.
type Strategy func(attempt int) time.Duration

// Fixed returns the same delay for every attempt.
func Fixed(d time.Duration) Strategy {
	return func(int) time.Duration { return d }
}

// Linear grows the delay by step each attempt, capped at maxDelay.
// A non-positive maxDelay means no cap.
func Linear(step, maxDelay time.Duration) Strategy {
	return func(attempt int) time.Duration {
		return clamp(step*time.Duration(attempt), maxDelay)
	}
}

// Exponential doubles the delay each attempt starting from initial,
// capped at maxDelay. A non-positive maxDelay means no cap.
func Exponential(initial, maxDelay time.Duration) Strategy {
	return func(attempt int) time.Duration {
		d := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
		return clamp(d, maxDelay)
	}
}

// Jitter wraps a strategy with full jitter: each delay is drawn uniformly
// from [0, base). Spreads out retries when many events fail together.
func Jitter(base Strategy) Strategy {
	return JitterWithRand(base, rand.Float64)
}

// JitterWithRand is Jitter with an injectable random source. Tests pass a
// deterministic func; rnd must return values in [0, 1).
func JitterWithRand(base Strategy, rnd func() float64) Strategy {
	return func(attempt int) time.Duration {
		return time.Duration(rnd() * float64(base(attempt)))
	}
}

func clamp(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
