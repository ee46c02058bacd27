package validation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"AlphaPilot/internal/source"
	"AlphaPilot/pkg/cache"
	xlogger "AlphaPilot/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, string)                    {}
func (nopMetrics) RecordCircuitTransition(string, string, string) {}
func (nopMetrics) RecordAlphaScore(string, float64, string)       {}
func (nopMetrics) RecordAdmit(string)                             {}
func (nopMetrics) RecordFill(string, string)                      {}
func (nopMetrics) RecordError(string)                             {}
func (nopMetrics) RecordLatency(string, float64)                  {}

type fakeFacts struct {
	mu    sync.Mutex
	facts AssetFacts
	err   error
	calls int
}

func (f *fakeFacts) Facts(_ context.Context, _ string) (*AssetFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	facts := f.facts
	return &facts, nil
}

func cleanFacts() AssetFacts {
	return AssetFacts{
		LiquidityUSD:      50000,
		LiquidityLocked:   true,
		TopHolderShare:    0.05,
		DeployerVerified:  true,
		ContractValidated: true,
	}
}

func testGate(venue FactsSource, c cache.Service) *Gate {
	return NewGate(Config{
		VerdictTTL:   time.Minute,
		CheckTimeout: time.Second,
		Thresholds:   Thresholds{MinLiquidityUSD: 10000, MaxHolderShare: 0.2},
		Breaker: source.BreakerConfig{
			FailureThreshold: 2,
			Window:           time.Minute,
			Cooldown:         time.Minute,
			MaxCooldown:      10 * time.Minute,
		},
	}, venue, c, xlogger.Nop(), nopMetrics{})
}

func TestValidatePassesCleanAsset(t *testing.T) {
	g := testGate(&fakeFacts{facts: cleanFacts()}, nil)

	v := g.Validate(context.Background(), "tok1")
	if !v.Passed {
		t.Fatalf("verdict failed: %v", v.FailedChecks)
	}
	if len(v.FailedChecks) != 0 {
		t.Fatalf("failed checks = %v, want none", v.FailedChecks)
	}
}

func TestValidateNamesEveryFailedCheck(t *testing.T) {
	facts := cleanFacts()
	facts.LiquidityLocked = false
	facts.MintAuthority = true
	facts.TopHolderShare = 0.6
	g := testGate(&fakeFacts{facts: facts}, nil)

	v := g.Validate(context.Background(), "tok1")
	if v.Passed {
		t.Fatal("verdict passed a compromised asset")
	}
	want := map[string]bool{
		CheckLiquidityLock:       true,
		CheckContractSanity:      true,
		CheckHolderConcentration: true,
	}
	if len(v.FailedChecks) != len(want) {
		t.Fatalf("failed checks = %v, want %d named failures", v.FailedChecks, len(want))
	}
	for _, name := range v.FailedChecks {
		if !want[name] {
			t.Fatalf("unexpected failed check %q", name)
		}
	}
}

func TestValidateCachesVerdictWithinTTL(t *testing.T) {
	venue := &fakeFacts{facts: cleanFacts()}
	g := testGate(venue, cache.NewMemoryCache())
	ctx := context.Background()

	g.Validate(ctx, "tok1")
	first := venue.calls
	g.Validate(ctx, "tok1")
	if venue.calls != first {
		t.Fatalf("venue calls = %d, want cached verdict reused (%d)", venue.calls, first)
	}
}

func TestInvalidateForcesRecheck(t *testing.T) {
	venue := &fakeFacts{facts: cleanFacts()}
	g := testGate(venue, cache.NewMemoryCache())
	ctx := context.Background()

	g.Validate(ctx, "tok1")
	first := venue.calls

	g.Invalidate(ctx, "tok1")
	venue.facts.LiquidityLocked = false
	v := g.Validate(ctx, "tok1")
	if venue.calls == first {
		t.Fatal("venue not re-queried after invalidation")
	}
	if v.Passed {
		t.Fatal("stale pass survived a liquidity pull")
	}
}

func TestUnreachableVenueFailsClosed(t *testing.T) {
	g := testGate(&fakeFacts{err: errors.New("venue timeout")}, nil)

	v := g.Validate(context.Background(), "tok1")
	if v.Passed {
		t.Fatal("verdict passed with no venue data")
	}
	if len(v.FailedChecks) == 0 {
		t.Fatal("no failed checks recorded for unreachable venue")
	}
}

func TestOpenCheckCircuitFailsClosed(t *testing.T) {
	venue := &fakeFacts{err: errors.New("venue down")}
	g := testGate(venue, nil)
	ctx := context.Background()

	// two failing batteries trip every per-check breaker
	g.Validate(ctx, "tok1")
	g.Validate(ctx, "tok1")
	calls := venue.calls

	v := g.Validate(ctx, "tok1")
	if v.Passed {
		t.Fatal("verdict passed behind open circuits")
	}
	if venue.calls != calls {
		t.Fatalf("venue called %d times behind open circuits, want none", venue.calls-calls)
	}
}
