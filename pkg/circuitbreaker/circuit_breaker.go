package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

func WithLogger(logger *logrus.Logger) Option {
	return func(cb *CircuitBreaker) { cb.logger = logger }
}

// WithHalfOpenMaxCalls sets how many trial calls run while half-open, and how
// many must succeed before the circuit closes again.
func WithHalfOpenMaxCalls(n uint32) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenMaxCalls = n
		}
	}
}

// WithFailurePredicate decides which errors count against the circuit.
// Errors for which fn returns false pass through without tripping it.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// WithStateChangeHook is called under the breaker lock on every transition.
func WithStateChangeHook(fn func(name string, from, to State)) Option {
	return func(cb *CircuitBreaker) { cb.onStateChange = fn }
}

// CircuitBreaker guards calls to an external service. After maxFailures
// consecutive failures it rejects calls for timeout, then lets a limited
// number of trial calls through.
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	timeout          time.Duration
	halfOpenMaxCalls uint32
	isFailure        func(error) bool
	onStateChange    func(name string, from, to State)
	logger           *logrus.Logger

	mu                sync.Mutex
	state             State
	failures          uint32
	lastFailureTime   time.Time
	halfOpenInFlight  uint32
	halfOpenSuccesses uint32
	requests          uint64
	rejected          uint64
}

func New(name string, maxFailures uint32, timeout time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: 3,
		isFailure:        defaultIsFailure,
		logger:           logrus.StandardLogger(),
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Execute runs fn unless the circuit is open. An open circuit returns an
// *OpenError without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state, ok := cb.acquire(); !ok {
		return &OpenError{Name: cb.name, State: state}
	}

	err := fn(ctx)
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() (State, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.timeout {
		cb.setState(StateHalfOpen)
	}

	switch cb.state {
	case StateClosed:
		return cb.state, true
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenMaxCalls {
			cb.rejected++
			return cb.state, false
		}
		cb.halfOpenInFlight++
		return cb.state, true
	default:
		cb.rejected++
		return cb.state, false
	}
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && cb.isFailure(err)

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		cb.lastFailureTime = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if failed {
			cb.lastFailureTime = time.Now()
			cb.setState(StateOpen)
			return
		}
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMaxCalls {
			cb.setState(StateClosed)
		}
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0
	if to == StateClosed {
		cb.failures = 0
	}

	entry := cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from":            from.String(),
		"to":              to.String(),
		"failures":        cb.failures,
	})
	if to == StateOpen {
		entry.Warn("Circuit breaker opened")
	} else {
		entry.Info("Circuit breaker state changed")
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State reports the current state, moving an expired open circuit to
// half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.timeout {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        uint32    `json:"failures"`
	Requests        uint64    `json:"requests"`
	Rejected        uint64    `json:"rejected"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		Requests:        cb.requests,
		Rejected:        cb.rejected,
		LastFailureTime: cb.lastFailureTime,
	}
}

// OpenError is returned by Execute while the circuit rejects calls.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsOpen reports whether err was produced by a rejecting circuit.
func IsOpen(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}
