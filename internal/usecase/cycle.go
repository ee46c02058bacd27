package usecase

import (
	"context"
	"sync"
	"time"

	"AlphaPilot/internal/deliberation"
	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/internal/execution"
	"AlphaPilot/internal/fusion"
	"AlphaPilot/internal/risk"
	"AlphaPilot/internal/validation"
	xlogger "AlphaPilot/pkg/logger"
)

// TradeCycle drains actionable assets from the pipeline and runs each
// through validation, deliberation, admission and execution. One asset is
// in flight at a time per cycle instance: the deliberation lane is the
// expensive, rate-limited stage and serializing it keeps provider spend
// bounded.
type TradeCycle struct {
	fusion     *fusion.Engine
	gate       *validation.Gate
	deliberate *deliberation.Engine
	governor   *risk.Governor
	exec       *execution.Engine
	logger     *xlogger.Logger
	metrics    drepo.Metrics

	triggers   <-chan string
	retryevery time.Duration

	mu       sync.Mutex
	deferred map[string]time.Time
}

func NewTradeCycle(fusionEngine *fusion.Engine, gate *validation.Gate, delib *deliberation.Engine, governor *risk.Governor, exec *execution.Engine, triggers <-chan string, retryEvery time.Duration, logger *xlogger.Logger, metrics drepo.Metrics) *TradeCycle {
	if retryEvery <= 0 {
		retryEvery = time.Minute
	}
	return &TradeCycle{
		fusion:     fusionEngine,
		gate:       gate,
		deliberate: delib,
		governor:   governor,
		exec:       exec,
		triggers:   triggers,
		retryevery: retryEvery,
		logger:     logger,
		metrics:    metrics,
		deferred:   make(map[string]time.Time),
	}
}

// Run drains triggers until the context ends. Deferred assets retry on a
// timer instead of being dropped.
func (c *TradeCycle) Run(ctx context.Context) {
	ticker := time.NewTicker(c.retryevery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case assetID := <-c.triggers:
			c.process(ctx, assetID)
		case <-ticker.C:
			for _, assetID := range c.dueRetries() {
				c.process(ctx, assetID)
			}
		}
	}
}

func (c *TradeCycle) process(ctx context.Context, assetID string) {
	start := time.Now()

	score, ok := c.fusion.Score(assetID)
	if !ok || !score.Actionable() {
		c.clearDeferred(assetID)
		return
	}

	verdict := c.gate.Validate(ctx, assetID)
	if !verdict.Passed {
		c.logger.Info("asset blocked by safety gate",
			xlogger.Error(&models.ValidationFailure{AssetID: assetID, Checks: verdict.FailedChecks}))
		c.clearDeferred(assetID)
		return
	}

	proposal := c.deliberate.Deliberate(ctx, score, verdict)
	switch proposal.Consensus {
	case models.ConsensusDefer:
		c.markDeferred(assetID)
		return
	case models.ConsensusReject:
		c.clearDeferred(assetID)
		return
	}
	c.clearDeferred(assetID)

	decision := c.governor.Admit(ctx, proposal)
	switch decision.Verdict {
	case models.AdmitDeferred:
		// slots or exposure free up when a position closes; retry then
		c.logger.Info("admission deferred",
			xlogger.String("asset", assetID),
			xlogger.String("reason", decision.Reason))
		c.markDeferred(assetID)
		return
	case models.AdmitDenied:
		c.logger.Info("proposal not admitted",
			xlogger.Error(&models.RiskDenied{AssetID: assetID, Reason: decision.Reason}))
		return
	}

	if _, err := c.exec.Open(ctx, proposal, decision.ApprovedSize); err != nil {
		c.logger.Error("position open failed",
			xlogger.String("asset", assetID),
			xlogger.Error(err))
		return
	}
	c.metrics.RecordLatency("trade_cycle", time.Since(start).Seconds())
}

func (c *TradeCycle) markDeferred(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.deferred[assetID]; !ok {
		c.deferred[assetID] = time.Now().Add(c.retryevery)
	}
}

func (c *TradeCycle) clearDeferred(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deferred, assetID)
}

func (c *TradeCycle) dueRetries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var due []string
	for assetID, at := range c.deferred {
		if !now.Before(at) {
			due = append(due, assetID)
			delete(c.deferred, assetID)
		}
	}
	return due
}
