package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Normal operation, calls pass through.
	Open                  // Failing, calls are rejected immediately.
	HalfOpen              // Probing, a single call is let through.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers fn to run after every transition. It is called
// without the breaker lock held.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker stops calling a failing dependency for a while after maxFailures
// consecutive errors.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	maxFailures     int
	resetTimeout    time.Duration
	lastFailureTime time.Time
	probing         bool

	now      func() time.Time
	onChange func(from, to State)
}

// New creates a Breaker that opens after maxFailures consecutive errors
// and lets one probe through once resetTimeout has passed.
func New(maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	b := &Breaker{
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn through the breaker. While open, or while a half-open probe
// is already in flight, ErrCircuitOpen is returned without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.probing = true
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)

	err := fn()

	b.mu.Lock()
	from = b.state
	b.probing = false
	if err != nil {
		b.failures++
		b.lastFailureTime = b.now()
		if b.state == HalfOpen || b.failures >= b.maxFailures {
			b.state = Open
		}
	} else {
		b.failures = 0
		b.state = Closed
	}
	to = b.state
	b.mu.Unlock()
	b.notify(from, to)

	return err
}

// State returns the current state of the breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}
