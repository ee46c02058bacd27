package deliberation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	domsvc "AlphaPilot/internal/domain/service"
	xlogger "AlphaPilot/pkg/logger"
)

// Config tunes a deliberation cycle.
type Config struct {
	CycleDeadline time.Duration // whole four-pass cycle
	CallTimeout   time.Duration // single role pass
	MaxSize       float64       // hard per-position cap, re-enforced in code
}

// Engine turns an actionable (AlphaScore, ValidationVerdict) pair into a
// bounded TradeProposal via four sequential role passes. Provider failures
// and deadline overruns yield Defer, never Reject: a deferred asset retries
// next cycle instead of being permanently blocked.
type Engine struct {
	provider domsvc.ReasoningProvider
	cfg      Config
	logger   *xlogger.Logger
	metrics  drepo.Metrics
}

// NewEngine creates a deliberation engine over a provider chain.
func NewEngine(provider domsvc.ReasoningProvider, cfg Config, logger *xlogger.Logger, metrics drepo.Metrics) *Engine {
	if cfg.CycleDeadline <= 0 {
		cfg.CycleDeadline = 90 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 0.05
	}
	return &Engine{provider: provider, cfg: cfg, logger: logger, metrics: metrics}
}

// Deliberate runs the four role passes. It always returns a proposal; a
// cycle that cannot complete returns one with Consensus=Defer.
func (e *Engine) Deliberate(ctx context.Context, score models.AlphaScore, verdict models.ValidationVerdict) *models.TradeProposal {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CycleDeadline)
	defer cancel()

	proposal := &models.TradeProposal{
		AssetID:         score.AssetID,
		Side:            models.SideBuy,
		RationaleByRole: make(map[models.Role]string, len(models.DeliberationOrder)),
		CreatedAt:       start,
	}

	// the venue is long-only: entries are buys, exits are the only sells,
	// so a bearish composite has nothing to trade
	if score.CompositeStrength < 0 {
		proposal.Consensus = models.ConsensusReject
		proposal.RationaleByRole[models.RoleCoordinator] = "bearish composite on a long-only venue"
		return proposal
	}
	if !score.Actionable() || !verdict.Passed {
		proposal.Consensus = models.ConsensusReject
		proposal.RationaleByRole[models.RoleCoordinator] = "preconditions not met"
		return proposal
	}

	outputs := make(map[models.Role]domsvc.RoleReply, len(models.DeliberationOrder))
	for _, role := range models.DeliberationOrder {
		reply, err := e.pass(cctx, role, score, verdict, outputs)
		if err != nil {
			if errors.Is(cctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", models.ErrDeliberationTimeout, err)
			}
			// exhausted providers or an overrun cycle: defer, retry next cycle
			e.metrics.RecordError("deliberation_defer")
			e.logger.Warn("deliberation cycle deferred",
				xlogger.String("asset", score.AssetID),
				xlogger.String("role", string(role)),
				xlogger.Error(err))
			proposal.Consensus = models.ConsensusDefer
			proposal.RationaleByRole[role] = "provider unavailable"
			return proposal
		}
		outputs[role] = *reply
		proposal.RationaleByRole[role] = reply.Rationale
	}

	e.synthesize(proposal, outputs)
	e.metrics.RecordLatency("deliberation_cycle", time.Since(start).Seconds())
	return proposal
}

// pass runs one role against the provider chain under the per-call timeout.
func (e *Engine) pass(ctx context.Context, role models.Role, score models.AlphaScore, verdict models.ValidationVerdict, prior map[models.Role]domsvc.RoleReply) (*domsvc.RoleReply, error) {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	return e.provider.Deliberate(pctx, domsvc.RoleRequest{
		Role:         role,
		Score:        score,
		Verdict:      verdict,
		PriorOutputs: prior,
		MaxSize:      e.cfg.MaxSize,
	})
}

// synthesize folds the role outputs into the final consensus. The size cap
// is applied here in code: a degenerate model answer cannot breach it.
func (e *Engine) synthesize(p *models.TradeProposal, outputs map[models.Role]domsvc.RoleReply) {
	if outputs[models.RoleContrarian].Verdict == models.ConsensusReject {
		p.Consensus = models.ConsensusReject
		return
	}

	coord := outputs[models.RoleCoordinator]
	switch coord.Verdict {
	case models.ConsensusReject:
		p.Consensus = models.ConsensusReject
		return
	case models.ConsensusDefer:
		p.Consensus = models.ConsensusDefer
		return
	}

	size := coord.ProposedSize
	if size <= 0 {
		size = outputs[models.RoleRiskManager].ProposedSize
	}
	if size <= 0 {
		p.Consensus = models.ConsensusReject
		p.RationaleByRole[models.RoleCoordinator] += " (no usable size)"
		return
	}
	if size > e.cfg.MaxSize {
		size = e.cfg.MaxSize
	}

	p.Consensus = models.ConsensusApprove
	p.RequestedSizeFraction = size
}
