package pixel

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument marks a bad coordinate or color. Retrying without change is pointless.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthenticated marks a missing or unverifiable identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimited marks a write inside the caller's cooldown window.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable marks an infrastructure failure. The whole request may be retried later.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RateLimitedError carries how long the caller must wait before the next write.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Kind is the machine-readable rejection class exposed on the wire.
type Kind string

const (
	KindInvalidArgument  Kind = "invalid_argument"
	KindUnauthenticated  Kind = "unauthenticated"
	KindRateLimited      Kind = "rate_limited"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// RetryAfter extracts the wait from a rate-limit rejection, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
