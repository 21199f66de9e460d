package services

import (
	"math"
	"time"
)

// RetryPolicy decides, from the zero-based count of prior failed attempts,
// whether a run should be retried and after how long. It is a pure decision
// function: it never sleeps and never touches storage.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries up to 3 times with 5s, 10s, 20s backoff,
// capped at 5 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// ShouldRetry reports whether another attempt is allowed after `attempt`
// prior failures.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay computes the exponential backoff before the next attempt:
// BaseDelay × 2^attempt, capped at MaxDelay. Monotonically non-decreasing
// in attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}
