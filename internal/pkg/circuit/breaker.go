// Package circuit stops calling a broker that keeps failing.
//
// A breaker is closed until threshold consecutive failures, then open for
// timeout. After that a single probe is let through (half-open): success
// closes the breaker, failure reopens it for another timeout.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tradebot/internal/logger"
)

var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "CLOSED",
	StateOpen:     "OPEN",
	StateHalfOpen: "HALF-OPEN",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

const (
	defaultThreshold = 5
	defaultTimeout   = 30 * time.Second
)

// StateChangeFunc is called, outside the breaker's lock, on every transition.
type StateChangeFunc func(name string, from, to State)

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	Threshold   int       `json:"threshold"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	// RetryAt is when an open breaker admits its probe.
	RetryAt time.Time `json:"retry_at,omitempty"`
}

type CircuitBreaker struct {
	name      string
	threshold int
	timeout   time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	onChange    StateChangeFunc
}

// NewCircuitBreaker returns a closed breaker. Non-positive threshold or
// timeout select the defaults.
func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CircuitBreaker{name: name, threshold: threshold, timeout: timeout, now: time.Now}
}

func (cb *CircuitBreaker) SetStateChangeHandler(fn StateChangeFunc) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := Stats{
		Name:        cb.name,
		State:       cb.state,
		Failures:    cb.failures,
		Threshold:   cb.threshold,
		LastFailure: cb.lastFailure,
	}
	if cb.state == StateOpen {
		s.RetryAt = cb.lastFailure.Add(cb.timeout)
	}
	return s
}

// Allow reports whether a call may proceed. An open breaker whose timeout
// has passed turns half-open and admits the caller as its only probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return cb.state == StateClosed
	}
	if cb.now().Sub(cb.lastFailure) <= cb.timeout {
		cb.mu.Unlock()
		return false
	}
	cb.setLocked(StateHalfOpen)
	return true
}

// RecordSuccess clears the failure count and closes a half-open breaker. It
// does not shorten an open breaker's timeout.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
	case StateHalfOpen:
		cb.failures = 0
		cb.setLocked(StateClosed)
	default:
		cb.failures = 0
		cb.mu.Unlock()
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failures++
	cb.lastFailure = cb.now()
	trip := cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.threshold)
	if !trip {
		cb.mu.Unlock()
		return
	}
	cb.setLocked(StateOpen)
}

// Do runs fn when the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// setLocked moves to state to, releases the lock and reports the change.
func (cb *CircuitBreaker) setLocked(to State) {
	from := cb.state
	cb.state = to
	fn := cb.onChange
	failures := cb.failures
	cb.mu.Unlock()
	if from == to {
		return
	}
	if fn != nil {
		fn(cb.name, from, to)
		return
	}
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d, timeout=%s)",
		cb.name, from, to, failures, cb.threshold, cb.timeout)
}
