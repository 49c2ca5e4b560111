package connpolicy

import (
	"testing"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := NewCircuitBreaker(fc)

	for i := 0; i < FailureThreshold; i++ {
		if !b.Allow() {
			t.Fatalf("attempt %d: expected Allow before trip", i)
		}
		b.RecordFailure()
	}

	if b.State() != Open {
		t.Fatalf("expected Open after %d failures, got %v", FailureThreshold, b.State())
	}
	if b.Allow() {
		t.Fatalf("expected Allow to be false while Open")
	}
}

func TestCircuitBreakerHalfOpenThenClose(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := NewCircuitBreaker(fc)
	for i := 0; i < FailureThreshold; i++ {
		b.Allow()
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("expected Open")
	}

	fc.Advance(OpenDuration)
	if !b.Allow() {
		t.Fatalf("expected single HalfOpen probe to be allowed")
	}
	if b.Allow() {
		t.Fatalf("expected second concurrent HalfOpen attempt to be refused")
	}
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %v", b.State())
	}
	if !b.Allow() {
		t.Fatalf("expected Allow after close")
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := NewCircuitBreaker(fc)
	for i := 0; i < FailureThreshold; i++ {
		b.Allow()
		b.RecordFailure()
	}
	fc.Advance(OpenDuration)
	if !b.Allow() {
		t.Fatalf("expected probe to be allowed")
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected Open again after failed probe, got %v", b.State())
	}
	if b.Allow() {
		t.Fatalf("expected Allow false immediately after reopening")
	}
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff()
	want := []time.Duration{1, 2, 4, 8, 16, 32}
	for i, w := range want {
		got := b.Next()
		if got != w*time.Second {
			t.Fatalf("step %d: expected %v, got %v", i, w*time.Second, got)
		}
	}
	// Stays capped.
	if got := b.Next(); got != BackoffMax {
		t.Fatalf("expected capped at %v, got %v", BackoffMax, got)
	}
}

func TestBackoffResetRestartsSequence(t *testing.T) {
	b := NewBackoff()
	b.Next()
	b.Next()
	b.Reset()
	if got := b.Next(); got != BackoffInitial {
		t.Fatalf("expected reset to restart at %v, got %v", BackoffInitial, got)
	}
}
