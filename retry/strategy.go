// Package retry provides exponential backoff retry strategies for message
// delivery. What happens after retries are exhausted is a per-subscription
// policy (block the queue or drop the message), decided by the caller.
package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines the retry behavior configuration for failed message
// deliveries. It implements exponential backoff with configurable
// parameters.
//
// The retry schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (30s base, 2.0 exponential, 30m max):
//
//	Attempt 1: 30s
//	Attempt 2: 1m
//	Attempt 3: 2m
//	Attempt 4: 4m
//	Attempt 5: 8m
type Strategy struct {
	MaxAttempts     int           // Maximum retry attempts before giving up
	BaseDelay       time.Duration // Initial retry delay (first attempt)
	MaxDelay        time.Duration // Maximum retry delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default retry strategy:
// 5 max attempts, 30s→30m exponential backoff.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        30 * time.Minute,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the retry delay for a given attempt using
// exponential backoff.
// Formula: delay = min(BaseDelay * ExponentialBase^attemptNumber, MaxDelay)
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable checks if another retry attempt is allowed.
// Returns true if the attempt count is below the maximum attempts limit.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

// GetRetrySchedule returns a human-readable description of the retry
// schedule, useful for debugging and operator documentation.
func (s Strategy) GetRetrySchedule() string {
	schedule := "Retry Schedule:\n"
	for i := 1; i <= s.MaxAttempts; i++ {
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, s.CalculateRetryDelay(i))
	}
	return schedule
}
