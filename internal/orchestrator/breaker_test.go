package orchestrator

import (
	"testing"
	"time"
)

func TestBreakerTripsOpenAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour}, nil)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != BreakerClosed {
			t.Fatalf("expected closed before threshold, got %s", b.State())
		}
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open at threshold, got %s", b.State())
	}
	if b.ShouldAllow() {
		t.Fatalf("expected open breaker to reject before reset timeout")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour}, nil)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerClosed {
		t.Fatalf("expected breaker to remain closed after success reset count, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond}, nil)
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if !b.ShouldAllow() {
		t.Fatalf("expected probe admission after reset timeout")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half_open after probe admission, got %s", b.State())
	}
	if b.ShouldAllow() {
		t.Fatalf("expected second concurrent probe to be rejected")
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond}, nil)
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	b.ShouldAllow()

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected re-open after failed probe, got %s", b.State())
	}
}

func TestBreakerOnStateChangeFires(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	var changes []BreakerStateChange
	b.OnStateChange(func(c BreakerStateChange) { changes = append(changes, c) })

	b.RecordFailure()

	if len(changes) != 1 || changes[0].To != BreakerOpen {
		t.Fatalf("expected one transition to open, got %v", changes)
	}
}
