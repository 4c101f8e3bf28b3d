package warehouse

import (
	"strings"
	"sync"
	"time"
)

// breakerState is the three states of the warehouse circuit breaker: a
// mutex-guarded struct with explicit named states rather than a generic
// state-machine library.
type breakerState int

const (
	closedState breakerState = iota
	openState
	halfOpenState
)

func (s breakerState) String() string {
	switch s {
	case openState:
		return "open"
	case halfOpenState:
		return "half-open"
	}
	return "closed"
}

const (
	consecutiveFailureThreshold = 5
	defaultCooldown             = 2 * time.Minute
)

// filegroupFullMarkers are substrings of a Postgres/SQL-Server error message
// that indicate an unrecoverable, capacity-driven failure (disk/filegroup
// full, transaction log full): these trip the breaker immediately,
// bypassing the consecutive-failure counter.
var filegroupFullMarkers = []string{
	"no space left on device",
	"disk full",
	"could not extend file",
	"the transaction log for database",
	"filegroup is full",
	"out of memory",
}

// CircuitBreaker guards the warehouse bulk writer from hammering a
// database that is already failing. Closed allows writes through; Open
// rejects writes immediately and routes them to the dead-letter path;
// HalfOpen allows exactly one trial write.
type CircuitBreaker struct {
	// Cooldown is how long the breaker stays Open before permitting a
	// HalfOpen trial write.
	Cooldown time.Duration

	mu              sync.Mutex
	state           breakerState
	consecutiveErrs int
	openedAt        time.Time
	reason          string
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{Cooldown: defaultCooldown}
}

// Allow reports whether a write attempt should proceed right now. In
// HalfOpen it returns true exactly once per Open period and the caller is
// expected to report the trial's outcome via Success/Failure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case closedState:
		return true
	case openState:
		if time.Since(cb.openedAt) >= cb.cooldown() {
			cb.state = halfOpenState
			return true
		}
		return false
	case halfOpenState:
		// Only the first caller after the state flip should get the trial;
		// subsequent callers while still HalfOpen are rejected until the
		// trial resolves.
		return false
	}
	return false
}

// Success records a successful write, closing the circuit immediately if
// it was HalfOpen and resetting the failure streak.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveErrs = 0
	if cb.state != closedState {
		cb.state = closedState
		cb.reason = ""
	}
}

// Failure records a write error. Capacity errors trip the breaker
// immediately regardless of streak length; deadlocks are transient victim
// kills and never count toward the streak; anything else opens the breaker
// after consecutiveFailureThreshold consecutive errors.
func (cb *CircuitBreaker) Failure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == halfOpenState {
		// The trial write failed: reopen for a fresh period.
		cb.open(reasonFor(err))
		return
	}

	if isCapacityError(err) {
		cb.open(reasonFor(err))
		return
	}
	if isDeadlockError(err) {
		return
	}
	cb.consecutiveErrs++
	if cb.consecutiveErrs >= consecutiveFailureThreshold {
		cb.open("consecutive_errors")
	}
}

// Reset forces the breaker Closed, clearing any trip. Exposed for operator
// intervention via the admin surface after the underlying fault is fixed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = closedState
	cb.consecutiveErrs = 0
	cb.reason = ""
}

func (cb *CircuitBreaker) cooldown() time.Duration {
	if cb.Cooldown > 0 {
		return cb.Cooldown
	}
	return defaultCooldown
}

func (cb *CircuitBreaker) open(reason string) {
	cb.state = openState
	cb.openedAt = time.Now()
	cb.reason = reason
	cb.consecutiveErrs = 0
}

// State returns the breaker's current state and trip reason (empty when
// Closed), for the health probe and admin endpoints.
func (cb *CircuitBreaker) State() (state string, reason string, openedAt time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String(), cb.reason, cb.openedAt
}

func isCapacityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range filegroupFullMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

var deadlockMarkers = []string{
	"deadlock detected",
	"40p01",
	"deadlock victim",
}

func isDeadlockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range deadlockMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func reasonFor(err error) string {
	if isCapacityError(err) {
		return "storage_capacity_exhausted"
	}
	return "consecutive_errors"
}
