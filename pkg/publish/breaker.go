package publish

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without publishing while the breaker is open
var ErrCircuitOpen = errors.New("publish circuit open")

// BreakerState represents the state of the circuit breaker
type BreakerState int

const (
	// BreakerClosed lets every publish through
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects publishes until the reset timeout elapses
	BreakerOpen
	// BreakerHalfOpen lets publishes through to probe the connection
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// halfOpenSuccesses closes a half-open breaker
const halfOpenSuccesses = 3

// Breaker stops a publisher from retrying against a subject that keeps failing.
// It opens after threshold consecutive failed publishes and half-opens once
// resetTimeout has passed since the last failure.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	now          func() time.Time
}

// NewBreaker creates a closed breaker. Non-positive arguments select 5 failures and 30s.
func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Allow reports whether a publish may proceed
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state != BreakerOpen
}

// RecordSuccess records a delivered message
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.successes++
		if b.successes >= halfOpenSuccesses {
			b.state = BreakerClosed
			b.successes = 0
		}
	}
}

// RecordFailure records a message that could not be delivered
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	b.failures++
	b.lastFailure = b.now()

	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

// State returns the current state without advancing it
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
