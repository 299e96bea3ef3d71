package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per key with a burst of one and a
// refill of one token per cooldown. A bucket with its token is Idle; an empty
// bucket is in Cooldown until it refills.
type MemoryLimiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	cooldown time.Duration
	idleTTL  time.Duration
	now      func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type MemoryOption func(*MemoryLimiter)

// WithIdleTTL sets how long an untouched key is kept. Values below the
// cooldown are raised to it: a key is never swept while still cooling down.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(l *MemoryLimiter) { l.idleTTL = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

func NewMemoryLimiter(cooldown time.Duration, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		entries:  make(map[string]*entry),
		cooldown: cooldown,
		idleTTL:  15 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.idleTTL < cooldown {
		l.idleTTL = cooldown
	}
	return l
}

// Reserve implements Limiter. AllowN takes the token under the bucket's own
// lock and leaves the bucket untouched when it refuses, so concurrent
// rejections never push the cooldown out.
func (l *MemoryLimiter) Reserve(_ context.Context, key string) (Decision, error) {
	now := l.now()
	lim := l.bucket(key, now)

	if lim.AllowN(now, 1) {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: l.retryAfter(lim.TokensAt(now))}, nil
}

// retryAfter converts a partial token into the wait until it is whole,
// clamped to (0, cooldown].
func (l *MemoryLimiter) retryAfter(tokens float64) time.Duration {
	wait := time.Duration((1 - tokens) * float64(l.cooldown))
	switch {
	case wait <= 0:
		return time.Millisecond
	case wait > l.cooldown:
		return l.cooldown
	}
	return wait
}

func (l *MemoryLimiter) bucket(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(rate.Every(l.cooldown), 1)
	l.entries[key] = &entry{lim: lim, lastSeen: now}
	return lim
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup drops keys idle for longer than the idle TTL. A dropped key's
// bucket had already refilled, so dropping it changes no decision.
func (l *MemoryLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// RunJanitor calls Cleanup every interval until ctx is cancelled.
func (l *MemoryLimiter) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Cleanup()
		}
	}
}
