// Package circuitbreaker guards upstream LLM providers. Each provider gets its
// own CircuitBreaker, usually obtained through a Set.
//
// State transitions:
//
//	Closed → Open        when consecutive failures ≥ FailureThreshold
//	Open   → HalfOpen   after Timeout elapses
//	HalfOpen → Closed   when consecutive successes ≥ SuccessThreshold
//	HalfOpen → Open     on any failure
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/ferro-labs/assistme/internal/metrics"
)

// State represents the circuit breaker's current state.
type State int

const (
	// StateClosed: normal operation, requests pass through.
	StateClosed State = iota
	// StateOpen: the provider is failing, requests are rejected immediately.
	StateOpen
	// StateHalfOpen: a limited number of requests probe for recovery.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker guards a single upstream provider.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	state            State
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	openUntil        time.Time
	now              func() time.Time
}

// New creates a CircuitBreaker for the named provider. Defaults are applied
// for zero/negative values: failureThreshold=5, successThreshold=1,
// timeout=30s.
func New(name string, failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
	cb.publish()
	return cb
}

// Name returns the provider this breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, transitioning Open→HalfOpen if the timeout
// has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.resolveState()
}

// resolveState must be called with cb.mu held.
func (cb *CircuitBreaker) resolveState() State {
	if cb.state == StateOpen && cb.now().After(cb.openUntil) {
		cb.setState(StateHalfOpen)
		cb.successCount = 0
	}
	return cb.state
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	cb.publish()
}

func (cb *CircuitBreaker) publish() {
	if cb.name != "" {
		metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(cb.state))
	}
}

// Allow reports whether a request should proceed (Closed or HalfOpen).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.resolveState() != StateOpen
}

// RecordSuccess notifies the breaker that a call succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.resolveState() {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// RecordFailure notifies the breaker that a call failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.resolveState() {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
			cb.openUntil = cb.now().Add(cb.timeout)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.openUntil = cb.now().Add(cb.timeout)
		cb.successCount = 0
	}
}

// Execute runs fn when the circuit allows it and records the outcome.
// Returns ErrCircuitOpen without calling fn when the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Set lazily creates one breaker per provider name with shared settings.
type Set struct {
	mu               sync.Mutex
	breakers         map[string]*CircuitBreaker
	failureThreshold int
	successThreshold int
	timeout          time.Duration
}

// NewSet creates an empty Set. Breakers it creates use New's defaults for
// zero values.
func NewSet(failureThreshold, successThreshold int, timeout time.Duration) *Set {
	return &Set{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
	}
}

// For returns the breaker for provider, creating it on first use.
func (s *Set) For(provider string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[provider]
	if !ok {
		cb = New(provider, s.failureThreshold, s.successThreshold, s.timeout)
		s.breakers[provider] = cb
	}
	return cb
}

// States returns a snapshot of every breaker's state keyed by provider.
func (s *Set) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.breakers))
	for name, cb := range s.breakers {
		out[name] = cb.State().String()
	}
	return out
}
