package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := New("test-trip", 3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("circuit open after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("open circuit must reject")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := New("test-reset", 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures are consecutive)", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := New("test-probe", 1, 10*time.Millisecond)

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("probe not admitted after open duration")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if b.Allow() {
		t.Error("second request admitted while probe in flight")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := New("test-reopen", 1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("probe not admitted")
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := New("test-defaults", 0, 0)
	if b.threshold != 5 || b.openDuration != 30*time.Second {
		t.Errorf("defaults not applied: threshold=%d openDuration=%v", b.threshold, b.openDuration)
	}
}
