package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit breaker is closed and requests are allowed.
	StateClosed CircuitBreakerState = iota
	// StateOpen means the circuit breaker is open and requests are blocked.
	StateOpen
	// StateHalfOpen means the circuit breaker lets a limited number of probes through.
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
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

// CircuitBreaker fast-fails calls to a dependency after repeated failures.
// The lock is never held while fn runs, so slow calls do not serialize callers.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	halfOpenMax int
	now         func() time.Time
	// IsFailure decides which errors count against the breaker. Nil counts every error.
	IsFailure func(error) bool

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
	inFlight    int
	successes   int
}

// NewCircuitBreaker creates a closed breaker that opens after maxFailures
// consecutive failures and probes again after cooldown.
func NewCircuitBreaker(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		halfOpenMax: 1,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Call executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.inFlight, cb.successes = 0, 0
	}
	switch cb.state {
	case StateOpen:
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	case StateHalfOpen:
		if cb.inFlight >= cb.halfOpenMax {
			return fmt.Errorf("%w: %s is half-open", ErrCircuitOpen, cb.name)
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	failed := err != nil && (cb.IsFailure == nil || cb.IsFailure(err))
	wasHalfOpen := cb.state == StateHalfOpen
	if wasHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	switch {
	case failed:
		cb.failures++
		cb.lastFailure = cb.now()
		if wasHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
	case wasHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures, cb.successes = 0, 0
		}
	default:
		cb.failures = 0
	}
	RecordCircuitBreakerStatus(cb.name, int(cb.state))
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
	RecordCircuitBreakerStatus(cb.name, int(cb.state))
}
