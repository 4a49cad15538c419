package client

import (
	"sync"
	"time"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/pkg/clock"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation
	StateOpen     CircuitState = "open"      // Blocking requests
	StateHalfOpen CircuitState = "half-open" // Probing the upstream
)

// CircuitBreaker stops calling an upstream that keeps failing and lets a
// probe through once the cool-down has passed.
type CircuitBreaker struct {
	name            string
	maxFailures     int
	coolDown        time.Duration
	halfOpenSuccess int
	clock           clock.Clock

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successCount    int
	lastStateChange time.Time
}

// NewCircuitBreaker opens after maxFailures consecutive failures and stays open for coolDown
func NewCircuitBreaker(name string, maxFailures int, coolDown time.Duration, clk clock.Clock) *CircuitBreaker {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		name:            name,
		maxFailures:     maxFailures,
		coolDown:        coolDown,
		halfOpenSuccess: 1,
		clock:           clk,
		state:           StateClosed,
		lastStateChange: clk.Now(),
	}
}

// Call runs fn unless the circuit is open, in which case domain.ErrCircuitOpen is returned
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen && cb.clock.Now().Sub(cb.lastStateChange) >= cb.coolDown {
		cb.transition(StateHalfOpen)
	}
	state := cb.state
	cb.mu.Unlock()

	if state == StateOpen {
		return domain.ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.transition(StateOpen)
	case cb.failures >= cb.maxFailures:
		logger.Logger.Error().
			Str("circuit", cb.name).
			Int("failures", cb.failures).
			Int("threshold", cb.maxFailures).
			Msg("Circuit breaker opened")
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.halfOpenSuccess {
			cb.transition(StateClosed)
		}
		return
	}
	cb.failures = 0
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	logger.Logger.Info().
		Str("circuit", cb.name).
		Str("from", string(cb.state)).
		Str("to", string(to)).
		Msg("Circuit breaker state change")
	cb.state = to
	cb.lastStateChange = cb.clock.Now()
	cb.successCount = 0
	if to == StateClosed {
		cb.failures = 0
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
