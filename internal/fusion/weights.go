package fusion

import (
	"context"
	"time"

	drepo "AlphaPilot/internal/domain/repository"
	xlogger "AlphaPilot/pkg/logger"
)

// WeightMover applies bounded weight deltas; implemented by source.Manager.
type WeightMover interface {
	AdjustWeight(sourceID string, delta float64) (old, updated float64)
}

// WeightAdapter slowly moves source reliability weights from realized trade
// outcomes. One bounded step per evaluation window; a move that flips any
// composite's sign triggers immediate recomputation instead of waiting for
// the next signal.
type WeightAdapter struct {
	journal drepo.Journal
	mover   WeightMover
	engine  *Engine
	step    float64
	window  time.Duration
	logger  *xlogger.Logger
}

// NewWeightAdapter creates the adaptation job.
func NewWeightAdapter(journal drepo.Journal, mover WeightMover, engine *Engine, step float64, window time.Duration, logger *xlogger.Logger) *WeightAdapter {
	if step <= 0 {
		step = 0.05
	}
	if window <= 0 {
		window = time.Hour
	}
	return &WeightAdapter{
		journal: journal,
		mover:   mover,
		engine:  engine,
		step:    step,
		window:  window,
		logger:  logger,
	}
}

// Run evaluates once per window until ctx is cancelled.
func (w *WeightAdapter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.evaluate(ctx)
		}
	}
}

// evaluate applies one bounded step per source based on attributed pnl.
func (w *WeightAdapter) evaluate(ctx context.Context) {
	since := time.Now().Add(-w.window)
	outcomes, err := w.journal.OutcomeBySource(ctx, since)
	if err != nil {
		w.logger.Warn("weight adaptation: outcome query failed", xlogger.Error(err))
		return
	}

	moved := false
	for sourceID, pnl := range outcomes {
		if pnl == 0 {
			continue
		}
		delta := w.step
		if pnl < 0 {
			delta = -w.step
		}
		old, updated := w.mover.AdjustWeight(sourceID, delta)
		if old != updated {
			moved = true
			w.logger.Info("reliability weight adjusted",
				xlogger.String("source", sourceID),
				xlogger.Float64("pnl", pnl),
				xlogger.Float64("old", old),
				xlogger.Float64("new", updated))
		}
	}
	if !moved {
		return
	}

	// recompute every tracked asset so a sign flip is visible immediately
	for _, asset := range w.engine.Assets() {
		score, flipped := w.engine.Recompute(asset)
		if flipped {
			w.logger.Info("composite sign flipped by weight adaptation",
				xlogger.String("asset", asset),
				xlogger.Float64("composite", score.CompositeStrength))
		}
	}
}
