package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one write attempt.
type Decision struct {
	Allowed bool
	// RetryAfter is the remaining cooldown when Allowed is false.
	RetryAfter time.Duration
}

// Limiter decides whether an identity may write now, recording the write if so.
type Limiter interface {
	Reserve(ctx context.Context, key string) (Decision, error)
}
