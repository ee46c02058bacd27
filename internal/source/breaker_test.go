package source

import (
	"testing"
	"time"

	"AlphaPilot/internal/domain/models"
)

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	br := NewBreaker("test-source", cfg, nil)
	clock := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	br.now = func() time.Time { return clock }
	return br, &clock
}

func tripBreaker(t *testing.T, br *Breaker, threshold int) {
	t.Helper()
	for i := 0; i < threshold; i++ {
		if !br.Allow() {
			t.Fatalf("call %d rejected while closed", i)
		}
		br.Failure()
	}
	if got := br.State(); got != models.CircuitOpen {
		t.Fatalf("state after %d failures = %v, want open", threshold, got)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	br, _ := newTestBreaker(BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	})

	for i := 0; i < 4; i++ {
		br.Failure()
		if got := br.State(); got != models.CircuitClosed {
			t.Fatalf("state after %d failures = %v, want closed", i+1, got)
		}
	}
	br.Failure()
	if got := br.State(); got != models.CircuitOpen {
		t.Fatalf("state after 5th failure = %v, want open", got)
	}
	if br.Allow() {
		t.Fatal("call admitted during cooldown")
	}
}

func TestBreakerRollingWindowForgetsOldFailures(t *testing.T) {
	br, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	})

	for i := 0; i < 4; i++ {
		br.Failure()
	}
	// first four age out of the window before the fifth arrives
	*clock = clock.Add(2 * time.Minute)
	br.Failure()
	if got := br.State(); got != models.CircuitClosed {
		t.Fatalf("state after stale failures pruned = %v, want closed", got)
	}
}

func TestBreakerSingleHalfOpenProbe(t *testing.T) {
	br, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	})
	tripBreaker(t, br, 5)

	if br.Allow() {
		t.Fatal("call admitted before cooldown expiry")
	}
	*clock = clock.Add(31 * time.Second)
	if !br.Allow() {
		t.Fatal("probe not admitted after cooldown")
	}
	if got := br.State(); got != models.CircuitHalfOpen {
		t.Fatalf("state during probe = %v, want half-open", got)
	}
	if br.Allow() {
		t.Fatal("second call admitted while probe in flight")
	}
}

func TestBreakerProbeSuccessClosesAndResetsBackoff(t *testing.T) {
	br, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	})
	tripBreaker(t, br, 5)

	*clock = clock.Add(31 * time.Second)
	if !br.Allow() {
		t.Fatal("probe not admitted")
	}
	br.Success()
	if got := br.State(); got != models.CircuitClosed {
		t.Fatalf("state after probe success = %v, want closed", got)
	}
	if !br.Allow() {
		t.Fatal("call rejected after circuit closed")
	}

	// backoff reset: a fresh trip uses the base cooldown again
	tripBreaker(t, br, 5)
	*clock = clock.Add(31 * time.Second)
	if !br.Allow() {
		t.Fatal("probe not admitted after base cooldown on retrip")
	}
}

func TestBreakerProbeFailureDoublesCooldown(t *testing.T) {
	br, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      90 * time.Second,
	})
	tripBreaker(t, br, 5)

	*clock = clock.Add(31 * time.Second)
	if !br.Allow() {
		t.Fatal("first probe not admitted")
	}
	br.Failure()
	if got := br.State(); got != models.CircuitOpen {
		t.Fatalf("state after probe failure = %v, want open", got)
	}

	// cooldown doubled to 60s
	*clock = clock.Add(31 * time.Second)
	if br.Allow() {
		t.Fatal("call admitted before doubled cooldown expired")
	}
	*clock = clock.Add(30 * time.Second)
	if !br.Allow() {
		t.Fatal("probe not admitted after doubled cooldown")
	}
	br.Failure()

	// next doubling would be 120s but the cap is 90s
	*clock = clock.Add(91 * time.Second)
	if !br.Allow() {
		t.Fatal("probe not admitted after capped cooldown")
	}
}

func TestBreakerTransitionCallback(t *testing.T) {
	var transitions []models.CircuitState
	br := NewBreaker("cb", BreakerConfig{
		FailureThreshold: 2,
		Window:           time.Minute,
		Cooldown:         10 * time.Second,
		MaxCooldown:      time.Minute,
	}, func(_ string, _, to models.CircuitState) {
		transitions = append(transitions, to)
	})
	clock := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	br.now = func() time.Time { return clock }

	br.Failure()
	br.Failure()
	clock = clock.Add(11 * time.Second)
	br.Allow()
	br.Success()

	want := []models.CircuitState{models.CircuitOpen, models.CircuitHalfOpen, models.CircuitClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}
