package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("redis: circuit breaker open")

// breakerState is the circuit breaker state.
type breakerState int

const (
	breakerClosed   breakerState = iota // calls pass through
	breakerOpen                         // calls rejected until the reset timeout
	breakerHalfOpen                     // one probe call allowed
)

// circuitBreaker trips after maxFailures consecutive failures, rejects calls
// for resetTimeout, then lets one probe through; the probe's outcome decides
// whether it closes or reopens.
type circuitBreaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	onTrip func() // optional, called when the breaker opens
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

func (cb *circuitBreaker) execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == breakerOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = breakerHalfOpen
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == breakerHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != breakerOpen && cb.onTrip != nil {
				cb.onTrip()
			}
			cb.state = breakerOpen
		}
		return err
	}
	cb.state = breakerClosed
	cb.failures = 0
	return nil
}
