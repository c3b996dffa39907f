// Package observability instruments the coordinator's outbound dependencies.
package observability

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	// StateClosed indicates the circuit is closed and operations are allowed.
	StateClosed CircuitBreakerState = iota
	// StateOpen indicates the circuit is open and operations are blocked for a cooldown period.
	StateOpen
	// StateHalfOpen indicates a trial state where operations are allowed to test recovery.
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

// CircuitBreaker trips after maxFailures consecutive failures, blocks calls
// for a cooldown, then admits trial calls until successesToClose consecutive
// successes close it again. A failure during the trial reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures      int
	cooldown         time.Duration
	successesToClose int

	state           CircuitBreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	stateChanges   int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, cooldown time.Duration, successesToClose int) *CircuitBreaker {
	if successesToClose < 1 {
		successesToClose = 1
	}
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		cooldown:         cooldown,
		successesToClose: successesToClose,
		state:            StateClosed,
	}
}

// CanExecute reports whether a lookup may be attempted right now.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.cooldown {
			cb.state = StateHalfOpen
			cb.failureCount = 0
			cb.successCount = 0
			cb.stateChanges++

			slog.Info("circuit breaker transitioning to half-open",
				slog.Duration("cooldown", cb.cooldown),
				slog.Time("last_failure", cb.lastFailureTime))
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a lookup the upstream answered.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.totalSuccesses++
	cb.successCount++
	cb.failureCount = 0

	if cb.state == StateHalfOpen && cb.successCount >= cb.successesToClose {
		cb.state = StateClosed
		cb.successCount = 0
		cb.stateChanges++

		slog.Info("circuit breaker closed after successful trials",
			slog.Int("successes_to_close", cb.successesToClose))
	}
}

// RecordFailure records a lookup that failed in transport or upstream.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.totalFailures++
	cb.failureCount++
	cb.successCount = 0
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
			cb.stateChanges++

			slog.Warn("circuit breaker opened after repeated failures",
				slog.Int("failure_count", cb.failureCount),
				slog.Int("max_failures", cb.maxFailures))
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.stateChanges++

		slog.Warn("circuit breaker reopened by a trial failure",
			slog.Int("failure_count", cb.failureCount))
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	successRate := float64(0)
	if cb.totalRequests > 0 {
		successRate = float64(cb.totalSuccesses) / float64(cb.totalRequests) * 100
	}

	return map[string]interface{}{
		"state":              cb.state.String(),
		"max_failures":       cb.maxFailures,
		"cooldown":           cb.cooldown.String(),
		"successes_to_close": cb.successesToClose,
		"failure_count":      cb.failureCount,
		"total_requests":     cb.totalRequests,
		"total_failures":     cb.totalFailures,
		"total_successes":    cb.totalSuccesses,
		"success_rate":       successRate,
		"state_changes":      cb.stateChanges,
		"last_failure":       cb.lastFailureTime.Format(time.RFC3339),
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalRequests = 0
	cb.totalFailures = 0
	cb.totalSuccesses = 0
	cb.stateChanges = 0
	cb.lastFailureTime = time.Time{}

	slog.Info("circuit breaker reset to closed state")
}
