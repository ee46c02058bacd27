package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	xlogger "AlphaPilot/pkg/logger"
)

// Config bounds the governor's admission policy.
type Config struct {
	MaxOpenPositions     int
	PerPositionCeiling   float64 // equity fraction
	PortfolioExposureCap float64 // equity fraction
	DrawdownFraction     float64 // of high-water mark; engages the kill switch
	InitialEquity        float64
}

// Governor is the sole writer of RiskState. Every check-then-mutate runs
// under one mutex, so two concurrent admissions can never both count the
// same free slot.
type Governor struct {
	mu    sync.Mutex
	state models.RiskState
	cfg   Config

	logger   *xlogger.Logger
	metrics  drepo.Metrics
	notifier drepo.Notifier
	now      func() time.Time
}

// NewGovernor creates a governor with the high-water mark seeded from
// initial equity.
func NewGovernor(cfg Config, logger *xlogger.Logger, metrics drepo.Metrics, notifier drepo.Notifier) *Governor {
	return &Governor{
		state: models.RiskState{
			EquityHighWaterMark: cfg.InitialEquity,
			UpdatedAt:           time.Now(),
		},
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		now:      time.Now,
	}
}

// Admit decides whether an approved proposal may open a position. An
// approval reserves exposure and a position slot immediately; callers that
// fail to open the position afterwards must Release.
func (g *Governor) Admit(ctx context.Context, p *models.TradeProposal) models.AdmitDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	// kill switch first: it dominates every other rule
	g.checkDrawdownLocked(ctx)
	if g.state.KillSwitchEngaged {
		return g.denyLocked("kill switch engaged: " + g.state.KillSwitchReason)
	}

	if p.Consensus != models.ConsensusApprove {
		return g.denyLocked(fmt.Sprintf("proposal consensus is %s", p.Consensus))
	}

	// cap and exposure exhaustion are transient: slots and exposure free
	// up when positions close, so these defer instead of denying
	if g.state.OpenPositionCount >= g.cfg.MaxOpenPositions {
		return g.deferLocked(fmt.Sprintf("open position cap reached (%d)", g.cfg.MaxOpenPositions))
	}

	size := p.RequestedSizeFraction
	if size <= 0 {
		return g.denyLocked("non-positive size")
	}
	if size > g.cfg.PerPositionCeiling {
		size = g.cfg.PerPositionCeiling
	}
	if free := g.cfg.PortfolioExposureCap - g.state.ReservedExposure; size > free {
		if free <= 0 {
			return g.deferLocked("portfolio exposure cap reached")
		}
		size = free
	}

	g.state.OpenPositionCount++
	g.state.ReservedExposure += size
	g.state.UpdatedAt = g.now()
	g.metrics.RecordAdmit(string(models.AdmitApproved))
	return models.AdmitDecision{Verdict: models.AdmitApproved, ApprovedSize: size}
}

// Release returns a reserved slot and exposure after a failed open. It is
// the counterpart of an Admit approval that never became a position.
func (g *Governor) Release(size float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.OpenPositionCount > 0 {
		g.state.OpenPositionCount--
	}
	g.state.ReservedExposure -= size
	if g.state.ReservedExposure < 0 {
		g.state.ReservedExposure = 0
	}
	g.state.UpdatedAt = g.now()
}

// RecordFill books realized pnl from a partial exit without freeing the slot.
func (g *Governor) RecordFill(ctx context.Context, pnl, freedExposure float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyPnLLocked(ctx, pnl)
	g.state.ReservedExposure -= freedExposure
	if g.state.ReservedExposure < 0 {
		g.state.ReservedExposure = 0
	}
	g.state.UpdatedAt = g.now()
}

// RecordClose books the final pnl of a position and frees its slot.
func (g *Governor) RecordClose(ctx context.Context, pnl, freedExposure float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyPnLLocked(ctx, pnl)
	if g.state.OpenPositionCount > 0 {
		g.state.OpenPositionCount--
	}
	g.state.ReservedExposure -= freedExposure
	if g.state.ReservedExposure < 0 {
		g.state.ReservedExposure = 0
	}
	g.state.UpdatedAt = g.now()
}

// ResetKillSwitch clears an engaged kill switch. Operator action only;
// nothing in the trading path calls this.
func (g *Governor) ResetKillSwitch(operator string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.KillSwitchEngaged {
		return false
	}
	g.state.KillSwitchEngaged = false
	g.state.KillSwitchReason = ""
	g.state.RealizedPnLToday = 0
	g.state.UpdatedAt = g.now()
	g.logger.Warn("kill switch reset", xlogger.String("operator", operator))
	return true
}

// EquityBase returns the equity amount that size fractions are taken
// against. The execution engine uses it to convert fill pnl to currency.
func (g *Governor) EquityBase() float64 {
	return g.cfg.InitialEquity
}

// Snapshot returns a copy of the current state for reporting.
func (g *Governor) Snapshot() models.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Governor) applyPnLLocked(ctx context.Context, pnl float64) {
	g.state.RealizedPnLToday += pnl
	if g.state.RealizedPnLToday > 0 {
		if hwm := g.cfg.InitialEquity + g.state.RealizedPnLToday; hwm > g.state.EquityHighWaterMark {
			g.state.EquityHighWaterMark = hwm
		}
	}
	g.checkDrawdownLocked(ctx)
}

// checkDrawdownLocked engages the kill switch once today's realized loss
// reaches the drawdown fraction of the high-water mark. The comparison is
// inclusive: hitting the threshold exactly engages.
func (g *Governor) checkDrawdownLocked(ctx context.Context) {
	if g.state.KillSwitchEngaged {
		return
	}
	limit := -g.cfg.DrawdownFraction * g.state.EquityHighWaterMark
	if g.state.RealizedPnLToday > limit {
		return
	}

	g.state.KillSwitchEngaged = true
	g.state.KillSwitchReason = fmt.Sprintf("realized pnl %.2f breached drawdown limit %.2f", g.state.RealizedPnLToday, limit)
	g.state.UpdatedAt = g.now()
	g.metrics.RecordError("kill_switch_engaged")
	g.logger.Error("kill switch engaged",
		xlogger.Float64("realized_pnl", g.state.RealizedPnLToday),
		xlogger.Float64("limit", limit))
	if g.notifier != nil {
		if err := g.notifier.NotifyKillSwitch(ctx, g.state); err != nil {
			g.logger.Warn("kill switch notification failed", xlogger.Error(err))
		}
	}
}

func (g *Governor) denyLocked(reason string) models.AdmitDecision {
	g.metrics.RecordAdmit(string(models.AdmitDenied))
	g.logger.Info("admission denied", xlogger.String("reason", reason))
	return models.AdmitDecision{Verdict: models.AdmitDenied, Reason: reason}
}

func (g *Governor) deferLocked(reason string) models.AdmitDecision {
	g.metrics.RecordAdmit(string(models.AdmitDeferred))
	g.logger.Info("admission deferred", xlogger.String("reason", reason))
	return models.AdmitDecision{Verdict: models.AdmitDeferred, Reason: reason}
}
