package warehouse

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker()
	for i := 0; i < consecutiveFailureThreshold-1; i++ {
		if !cb.Allow() {
			t.Fatalf("expected Allow() to stay true before the threshold is reached")
		}
		cb.Failure(errors.New("connection reset"))
	}
	state, _, _ := cb.State()
	if state != "closed" {
		t.Fatalf("expected breaker still closed after %d failures, got %s", consecutiveFailureThreshold-1, state)
	}

	cb.Failure(errors.New("connection reset"))
	state, reason, _ := cb.State()
	if state != "open" || reason != "consecutive_errors" {
		t.Fatalf("expected breaker to open with reason consecutive_errors, got state=%s reason=%s", state, reason)
	}
	if cb.Allow() {
		t.Fatalf("expected Allow() to reject while open")
	}
}

func TestCircuitBreakerTripsImmediatelyOnCapacityError(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Allow()
	cb.Failure(errors.New("ERROR: could not extend file \"base/16384/16385\": No space left on device"))
	state, reason, _ := cb.State()
	if state != "open" || reason != "storage_capacity_exhausted" {
		t.Fatalf("expected immediate trip with storage_capacity_exhausted, got state=%s reason=%s", state, reason)
	}
}

func TestCircuitBreakerHalfOpenSingleTrialThenCloses(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Allow()
	cb.Failure(errors.New("ERROR: disk full"))
	cb.openedAt = time.Now().Add(-defaultCooldown - time.Second)

	if !cb.Allow() {
		t.Fatalf("expected the first Allow() after the cooldown to transition to half-open and return true")
	}
	state, _, _ := cb.State()
	if state != "half-open" {
		t.Fatalf("expected half-open state, got %s", state)
	}
	if cb.Allow() {
		t.Fatalf("expected a second concurrent Allow() during the half-open trial to be rejected")
	}

	cb.Success()
	state, reason, _ := cb.State()
	if state != "closed" || reason != "" {
		t.Fatalf("expected a successful trial to close the breaker, got state=%s reason=%s", state, reason)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Allow()
	cb.Failure(errors.New("ERROR: disk full"))
	cb.openedAt = time.Now().Add(-defaultCooldown - time.Second)
	cb.Allow()

	cb.Failure(errors.New("connection reset"))
	state, _, openedAt := cb.State()
	if state != "open" {
		t.Fatalf("expected a failed half-open trial to reopen the breaker, got %s", state)
	}
	if time.Since(openedAt) > time.Second {
		t.Fatalf("expected openedAt to be refreshed on reopen")
	}
}

func TestCircuitBreakerIgnoresDeadlockErrors(t *testing.T) {
	cb := NewCircuitBreaker()
	for i := 0; i < consecutiveFailureThreshold*2; i++ {
		cb.Failure(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"))
	}
	state, _, _ := cb.State()
	if state != "closed" {
		t.Fatalf("deadlock victims must not count toward the failure streak, got %s", state)
	}
}

func TestCircuitBreakerManualReset(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Failure(errors.New("ERROR: disk full"))
	if state, _, _ := cb.State(); state != "open" {
		t.Fatalf("expected open before reset")
	}
	cb.Reset()
	state, reason, _ := cb.State()
	if state != "closed" || reason != "" {
		t.Fatalf("expected a manual reset to close and clear the breaker, got state=%s reason=%s", state, reason)
	}
	if !cb.Allow() {
		t.Fatalf("expected writes permitted immediately after a manual reset")
	}
}
