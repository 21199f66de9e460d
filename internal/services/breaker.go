package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by CircuitBreaker.Call when the circuit is
// open and the wrapped call was rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState is the current mode of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// BreakerSettings configures one circuit breaker instance.
type BreakerSettings struct {
	// Enabled gates the breaker entirely; when false, Call passes through.
	Enabled bool
	// FailureThreshold is the number of consecutive failures in the closed
	// state that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a trial
	// half-open transition.
	RecoveryTimeout time.Duration
	// HalfOpenSuccesses is the number of consecutive successes in the
	// half-open state needed to close the circuit again.
	HalfOpenSuccesses int
}

// DefaultBreakerSettings mirror the service defaults: open after 5
// failures, probe after 30s, close after 3 successful probes.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Enabled:           true,
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenSuccesses: 3,
	}
}

// CircuitBreaker fails fast against a downstream dependency after sustained
// failures. State is process-local and guarded by a single mutex; every
// state read that participates in a decision, including the open→half-open
// timeout check, happens under that mutex so two goroutines cannot observe
// the same expired timeout and double-transition.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	successCount int
	openedAt     time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker guarding the named dependency.
func NewCircuitBreaker(name string, settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		state:    CircuitClosed,
		now:      time.Now,
	}
}

// Call executes fn under circuit protection. When the circuit is open the
// call is rejected with ErrCircuitOpen without invoking fn. fn's error
// result feeds the breaker's failure accounting.
func (b *CircuitBreaker) Call(fn func() error) error {
	if !b.settings.Enabled {
		return fn()
	}

	if !b.allow() {
		return fmt.Errorf("circuit breaker %q: %w", b.name, ErrCircuitOpen)
	}

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State returns the breaker state, applying the open→half-open transition
// if the recovery timeout has elapsed.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset forces the breaker closed. Intended for tests and manual recovery.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toClosed()
}

// BreakerStatus is a point-in-time snapshot for diagnostics.
type BreakerStatus struct {
	Name         string       `json:"name"`
	Enabled      bool         `json:"enabled"`
	State        CircuitState `json:"state"`
	FailureCount int          `json:"failure_count"`
	SuccessCount int          `json:"success_count"`
}

// Status returns a snapshot of the breaker for the diagnostics surface.
func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return BreakerStatus{
		Name:         b.name,
		Enabled:      b.settings.Enabled,
		State:        b.state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
	}
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state != CircuitOpen
}

// maybeHalfOpen applies the open→half-open transition. Callers must hold mu.
func (b *CircuitBreaker) maybeHalfOpen() {
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.settings.RecoveryTimeout {
		slog.Info("circuit breaker half-open", "name", b.name)
		b.state = CircuitHalfOpen
		b.successCount = 0
	}
}

func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.settings.HalfOpenSuccesses {
			slog.Info("circuit breaker closed", "name", b.name)
			b.toClosed()
		}
	case CircuitClosed:
		b.failureCount = 0
	}
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		// One failure while probing reopens immediately.
		slog.Warn("circuit breaker reopened", "name", b.name)
		b.toOpen()
	case CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.settings.FailureThreshold {
			slog.Warn("circuit breaker opened",
				"name", b.name, "failures", b.failureCount)
			b.toOpen()
		}
	}
}

// toOpen and toClosed must be called with mu held.
func (b *CircuitBreaker) toOpen() {
	b.state = CircuitOpen
	b.openedAt = b.now()
}

func (b *CircuitBreaker) toClosed() {
	b.state = CircuitClosed
	b.failureCount = 0
	b.successCount = 0
	b.openedAt = time.Time{}
}
