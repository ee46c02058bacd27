package deliberation

import (
	"context"
	"errors"
	"testing"
	"time"

	"AlphaPilot/internal/domain/models"
	domsvc "AlphaPilot/internal/domain/service"
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

// scriptedProvider answers each role from a fixed table and can fail on a
// chosen role.
type scriptedProvider struct {
	replies  map[models.Role]domsvc.RoleReply
	failRole models.Role
	failErr  error
	calls    []models.Role
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Deliberate(_ context.Context, req domsvc.RoleRequest) (*domsvc.RoleReply, error) {
	p.calls = append(p.calls, req.Role)
	if req.Role == p.failRole && p.failErr != nil {
		return nil, p.failErr
	}
	r := p.replies[req.Role]
	return &r, nil
}

func approveAll(size float64) map[models.Role]domsvc.RoleReply {
	return map[models.Role]domsvc.RoleReply{
		models.RoleAnalyst:     {Rationale: "setup looks clean", Verdict: models.ConsensusApprove},
		models.RoleRiskManager: {Rationale: "sized within limits", ProposedSize: size, Verdict: models.ConsensusApprove},
		models.RoleContrarian:  {Rationale: "no strong counter-case", Verdict: models.ConsensusApprove},
		models.RoleCoordinator: {Rationale: "consensus to enter", ProposedSize: size, Verdict: models.ConsensusApprove},
	}
}

func actionableScore() models.AlphaScore {
	return models.AlphaScore{
		AssetID:             "tok1",
		CompositeStrength:   0.7,
		ContributingSources: []string{"onchain", "social"},
		Tier:                models.TierHigh,
		ComputedAt:          time.Now(),
	}
}

func passedVerdict() models.ValidationVerdict {
	return models.ValidationVerdict{AssetID: "tok1", Passed: true, CheckedAt: time.Now(), TTL: time.Minute}
}

func testEngine(p domsvc.ReasoningProvider) *Engine {
	return NewEngine(p, Config{MaxSize: 0.05}, xlogger.Nop(), nopMetrics{})
}

func TestDeliberateApprovesWithFullConsensus(t *testing.T) {
	provider := &scriptedProvider{replies: approveAll(0.03)}
	e := testEngine(provider)

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.Consensus != models.ConsensusApprove {
		t.Fatalf("consensus = %v, want approve", p.Consensus)
	}
	if p.RequestedSizeFraction != 0.03 {
		t.Fatalf("size = %v, want 0.03", p.RequestedSizeFraction)
	}
	if p.Side != models.SideBuy {
		t.Fatalf("side = %v, want buy for positive composite", p.Side)
	}
	if len(p.RationaleByRole) != 4 {
		t.Fatalf("rationales = %d, want all four roles", len(p.RationaleByRole))
	}

	// roles run in fixed order
	want := models.DeliberationOrder
	if len(provider.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", provider.calls, want)
	}
	for i := range want {
		if provider.calls[i] != want[i] {
			t.Fatalf("pass %d = %v, want %v", i, provider.calls[i], want[i])
		}
	}
}

func TestDeliberateProviderFailureDefers(t *testing.T) {
	provider := &scriptedProvider{
		replies:  approveAll(0.03),
		failRole: models.RoleContrarian,
		failErr:  errors.New("backend unavailable"),
	}
	e := testEngine(provider)

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.Consensus != models.ConsensusDefer {
		t.Fatalf("consensus = %v, want defer on provider failure", p.Consensus)
	}
}

func TestDeliberateContrarianVetoRejects(t *testing.T) {
	replies := approveAll(0.03)
	replies[models.RoleContrarian] = domsvc.RoleReply{
		Rationale: "volume looks wash-traded",
		Verdict:   models.ConsensusReject,
	}
	e := testEngine(&scriptedProvider{replies: replies})

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.Consensus != models.ConsensusReject {
		t.Fatalf("consensus = %v, want reject on contrarian veto", p.Consensus)
	}
}

func TestDeliberateClampsOversizedAnswer(t *testing.T) {
	e := testEngine(&scriptedProvider{replies: approveAll(0.40)})

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.Consensus != models.ConsensusApprove {
		t.Fatalf("consensus = %v, want approve", p.Consensus)
	}
	if p.RequestedSizeFraction != 0.05 {
		t.Fatalf("size = %v, want clamped to 0.05", p.RequestedSizeFraction)
	}
}

func TestDeliberateFallsBackToRiskManagerSize(t *testing.T) {
	replies := approveAll(0.02)
	coord := replies[models.RoleCoordinator]
	coord.ProposedSize = 0
	replies[models.RoleCoordinator] = coord
	e := testEngine(&scriptedProvider{replies: replies})

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.RequestedSizeFraction != 0.02 {
		t.Fatalf("size = %v, want the risk manager's 0.02", p.RequestedSizeFraction)
	}
}

func TestDeliberateRejectsOnPreconditions(t *testing.T) {
	provider := &scriptedProvider{replies: approveAll(0.03)}
	e := testEngine(provider)

	weak := actionableScore()
	weak.Tier = models.TierLow
	if p := e.Deliberate(context.Background(), weak, passedVerdict()); p.Consensus != models.ConsensusReject {
		t.Fatalf("consensus = %v, want reject for low tier", p.Consensus)
	}

	failed := passedVerdict()
	failed.Passed = false
	if p := e.Deliberate(context.Background(), actionableScore(), failed); p.Consensus != models.ConsensusReject {
		t.Fatalf("consensus = %v, want reject for failed validation", p.Consensus)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("provider called %d times on precondition reject, want 0", len(provider.calls))
	}
}

func TestDeliberateBearishScoreRejectedOnLongOnlyVenue(t *testing.T) {
	provider := &scriptedProvider{replies: approveAll(0.03)}
	e := testEngine(provider)

	bearish := actionableScore()
	bearish.CompositeStrength = -0.7
	p := e.Deliberate(context.Background(), bearish, passedVerdict())
	if p.Consensus != models.ConsensusReject {
		t.Fatalf("consensus = %v, want reject for a bearish composite", p.Consensus)
	}
	if p.Side != models.SideBuy {
		t.Fatalf("side = %v, entries are always buys", p.Side)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("provider called %d times for an untradeable score, want 0", len(provider.calls))
	}
}

func TestDeliberateCycleDeadlineDefers(t *testing.T) {
	blocking := &blockingProvider{}
	e := NewEngine(blocking, Config{
		CycleDeadline: 5 * time.Millisecond,
		CallTimeout:   time.Second,
		MaxSize:       0.05,
	}, xlogger.Nop(), nopMetrics{})

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.Consensus != models.ConsensusDefer {
		t.Fatalf("consensus = %v, want defer on cycle deadline overrun", p.Consensus)
	}
}

// blockingProvider holds every pass until its context expires.
type blockingProvider struct{}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Deliberate(ctx context.Context, _ domsvc.RoleRequest) (*domsvc.RoleReply, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDeliberateCoordinatorDeferPropagates(t *testing.T) {
	replies := approveAll(0.03)
	coord := replies[models.RoleCoordinator]
	coord.Verdict = models.ConsensusDefer
	replies[models.RoleCoordinator] = coord
	e := testEngine(&scriptedProvider{replies: replies})

	p := e.Deliberate(context.Background(), actionableScore(), passedVerdict())
	if p.Consensus != models.ConsensusDefer {
		t.Fatalf("consensus = %v, want defer", p.Consensus)
	}
}
