package usecase

import (
	"context"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/internal/execution"
	"AlphaPilot/internal/fusion"
	"AlphaPilot/internal/validation"
	xlogger "AlphaPilot/pkg/logger"
)

// SignalPipeline is the ingest path: every normalized signal, whatever its
// transport, flows through HandleSignal exactly once. Prices flow through
// HandlePrice into the cache and the position monitor.
type SignalPipeline struct {
	fusion    *fusion.Engine
	gate      *validation.Gate
	journal   drepo.Journal
	prices    *execution.PriceCache
	positions *execution.Engine
	logger    *xlogger.Logger
	metrics   drepo.Metrics

	// actionable scores queue here for the trade cycle; sends never block
	// the ingest path
	triggers chan string
}

func NewSignalPipeline(fusionEngine *fusion.Engine, gate *validation.Gate, journal drepo.Journal, prices *execution.PriceCache, positions *execution.Engine, logger *xlogger.Logger, metrics drepo.Metrics) *SignalPipeline {
	return &SignalPipeline{
		fusion:    fusionEngine,
		gate:      gate,
		journal:   journal,
		prices:    prices,
		positions: positions,
		logger:    logger,
		metrics:   metrics,
		triggers:  make(chan string, 256),
	}
}

// Triggers exposes the stream of assets whose score just became actionable.
func (p *SignalPipeline) Triggers() <-chan string { return p.triggers }

// HandleSignal journals, routes and scores one signal.
func (p *SignalPipeline) HandleSignal(ctx context.Context, s *models.Signal) {
	p.metrics.RecordSignal(s.SourceID, s.AssetID)

	if err := p.journal.StoreSignal(ctx, s); err != nil {
		p.logger.Warn("signal journal write failed",
			xlogger.String("source", s.SourceID),
			xlogger.Error(err))
	}

	// a liquidity pull voids any cached safety verdict before rescoring
	if s.IsLiquidityPull() {
		p.logger.Warn("liquidity pull observed",
			xlogger.String("asset", s.AssetID),
			xlogger.String("source", s.SourceID))
		p.gate.Invalidate(ctx, s.AssetID)
	}

	score := p.fusion.Ingest(s)
	if !score.Actionable() {
		return
	}

	select {
	case p.triggers <- s.AssetID:
	default:
		// cycle is saturated; the asset rescores on its next signal
		p.metrics.RecordError("trigger_queue_full")
	}
}

// HandlePrice records an observation and drives open positions on the asset.
func (p *SignalPipeline) HandlePrice(ctx context.Context, u *models.PriceUpdate) {
	p.prices.Update(u)
	p.positions.OnPrice(ctx, u)
}
