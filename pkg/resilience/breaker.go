// Package resilience guards calls to flaky collaborators.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a circuit breaker.
type State int

const (
	StateClosed   State = iota // calls flow
	StateOpen                  // calls rejected
	StateHalfOpen              // probing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed while half-open.
	HalfOpenMax int
	// IsFailure classifies errors. Nil counts every error except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released after every transition.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts trips after five failures and probes after 30s.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker is a closed/open/half-open circuit breaker.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a Breaker, filling zero options from DefaultBreakerOpts.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	st, changed, from := b.advance()
	b.mu.Unlock()
	if changed {
		b.notify(from, st)
	}
	return st
}

// advance moves open to half-open once the timeout passed. Must hold mu.
func (b *Breaker) advance() (st State, changed bool, from State) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.halfOpenCount = 0
		return b.state, true, StateOpen
	}
	return b.state, false, b.state
}

func (b *Breaker) notify(from, to State) {
	if b.opts.OnStateChange != nil && from != to {
		b.opts.OnStateChange(from, to)
	}
}

// Call runs f unless the breaker is open.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	b.mu.Lock()
	st, changed, from := b.advance()
	switch st {
	case StateOpen:
		b.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			b.mu.Unlock()
			if changed {
				b.notify(from, st)
			}
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	b.mu.Unlock()
	if changed {
		b.notify(from, st)
	}

	err := f(ctx)

	b.mu.Lock()
	before := b.state
	if err != nil && b.opts.IsFailure(err) {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
	} else if err == nil {
		if b.state == StateHalfOpen {
			b.state = StateClosed
		}
		b.failures = 0
	}
	after := b.state
	b.mu.Unlock()

	b.notify(before, after)
	return err
}
