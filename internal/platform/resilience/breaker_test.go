package resilience

import (
	"testing"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		ResetTimeout:     60 * time.Second,
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("svc", testConfig(), clock.NewFixed(time.Now()))
	if b.State() != StateClosed {
		t.Fatalf("new breaker should start closed, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("closed breaker should allow calls: %v", err)
	}
}

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	b := New("svc", testConfig(), clock.NewFixed(time.Now()))
	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d should be allowed while closed: %v", i, err)
		}
		b.Record(false)
	}
	if b.State() != StateOpen {
		t.Fatalf("breaker should be open after 3 failures, got %s", b.State())
	}

	err := b.Allow()
	if err == nil {
		t.Fatalf("open breaker should reject calls")
	}
	appErr := apperrors.As(err)
	if appErr == nil || appErr.Code != apperrors.CodeBreakerOpen {
		t.Fatalf("expected BreakerOpen error, got %v", err)
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	c := clock.NewFixed(time.Now())
	b := New("svc", testConfig(), c)
	for i := 0; i < 3; i++ {
		b.Allow()
		b.Record(false)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open state")
	}

	c.Advance(29 * time.Second)
	if err := b.Allow(); err == nil {
		t.Fatalf("breaker should still be open before open_timeout elapses")
	}

	c.Advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("breaker should allow a probe once open_timeout elapses: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("breaker should transition to half-open on the probe, got %s", b.State())
	}
}

func TestBreakerClosesAfterSuccessThresholdInHalfOpen(t *testing.T) {
	c := clock.NewFixed(time.Now())
	b := New("svc", testConfig(), c)
	for i := 0; i < 3; i++ {
		b.Allow()
		b.Record(false)
	}
	c.Advance(31 * time.Second)
	b.Allow() // open -> half-open

	b.Record(true)
	if b.State() != StateHalfOpen {
		t.Fatalf("one success shouldn't close the breaker yet, got %s", b.State())
	}
	b.Record(true)
	if b.State() != StateClosed {
		t.Fatalf("two successes should close the breaker, got %s", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	c := clock.NewFixed(time.Now())
	b := New("svc", testConfig(), c)
	for i := 0; i < 3; i++ {
		b.Allow()
		b.Record(false)
	}
	c.Advance(31 * time.Second)
	b.Allow() // -> half-open

	b.Record(false)
	if b.State() != StateOpen {
		t.Fatalf("a failed probe should reopen the breaker, got %s", b.State())
	}

	// The failed probe uses reset_timeout (60s), not open_timeout (30s).
	c.Advance(31 * time.Second)
	if err := b.Allow(); err == nil {
		t.Fatalf("breaker should still be open at 31s into reset_timeout")
	}
	c.Advance(30 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("breaker should allow a probe once reset_timeout elapses: %v", err)
	}
}

func TestBreakerClosedSuccessResetsFailureCount(t *testing.T) {
	b := New("svc", testConfig(), clock.NewFixed(time.Now()))
	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(false)
	b.Record(true) // closed success resets the failure count

	b.Allow()
	b.Record(false)
	if b.State() != StateClosed {
		t.Fatalf("failure count should have reset after the intervening success, got %s", b.State())
	}
}

func TestRegistryReusesBreakerPerService(t *testing.T) {
	r := NewRegistry(testConfig(), clock.NewFixed(time.Now()))
	a := r.Get("primary-exec")
	b := r.Get("primary-exec")
	if a != b {
		t.Fatalf("Registry.Get should return the same breaker instance for a repeated service name")
	}
	other := r.Get("webhook:example.com")
	if other == a {
		t.Fatalf("Registry.Get should return distinct breakers for distinct service names")
	}
}

func TestRegistrySnapshotReflectsAllBreakers(t *testing.T) {
	r := NewRegistry(testConfig(), clock.NewFixed(time.Now()))
	r.Get("svc-a")
	r.Get("svc-b")

	snaps := r.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
}
