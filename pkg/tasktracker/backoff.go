package tasktracker

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy bounds the retry schedule for transient executor errors.
type BackoffPolicy struct {
	InitialInterval    time.Duration
	MaximumInterval    time.Duration
	BackoffCoefficient float64
	MaxAttempts        int
}

// DefaultBackoffPolicy is used when the caller does not override retries.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialInterval:    200 * time.Millisecond,
		MaximumInterval:    5 * time.Second,
		BackoffCoefficient: 2.0,
		MaxAttempts:        4,
	}
}

// Backoff returns the jittered delay before the given retry attempt.
// Attempt numbering starts at 1 for the first retry.
func (p BackoffPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialInterval
	}

	multiplier := math.Pow(p.BackoffCoefficient, float64(attempt-1))
	backoff := float64(p.InitialInterval) * multiplier

	jitterFactor := 0.8 + rand.Float64()*0.4
	backoff *= jitterFactor

	if backoff > float64(p.MaximumInterval) {
		backoff = float64(p.MaximumInterval)
	}

	return time.Duration(backoff)
}
