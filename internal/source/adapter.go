package source

import (
	"context"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	xlogger "AlphaPilot/pkg/logger"
)

// SignalSink receives normalized signals from adapters.
type SignalSink func(ctx context.Context, s *models.Signal)

// PriceSink receives observed market prices from adapters that stream them.
type PriceSink func(ctx context.Context, p *models.PriceUpdate)

// PriceStreamer is implemented by sources that also observe market prices.
type PriceStreamer interface {
	Prices() <-chan *models.PriceUpdate
}

// Adapter owns one external source: its connection loop, its circuit
// breaker and its SourceState. Failures stay inside the adapter; the rest
// of the pipeline only ever sees normalized signals.
type Adapter struct {
	src     drepo.SignalSource
	breaker *Breaker
	logger  *xlogger.Logger
	metrics drepo.Metrics
}

// NewAdapter wires a source to its breaker.
func NewAdapter(src drepo.SignalSource, breaker *Breaker, logger *xlogger.Logger, metrics drepo.Metrics) *Adapter {
	return &Adapter{
		src:     src,
		breaker: breaker,
		logger:  logger,
		metrics: metrics,
	}
}

// ID returns the owned source's identifier.
func (a *Adapter) ID() string { return a.src.ID() }

// circuitState snapshots breaker bookkeeping for the SourceState record.
// The reliability weight lives in the Manager, which owns weight mutation.
func (a *Adapter) circuitState() (models.CircuitState, int, time.Time) {
	return a.breaker.Snapshot()
}

// Run drives the source until ctx is cancelled. With an open circuit the
// adapter performs no I/O at all: it sleeps until the cooldown expires.
func (a *Adapter) Run(ctx context.Context, signals SignalSink, prices PriceSink) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !a.breaker.Allow() {
			a.sleepUntilCooldown(ctx)
			continue
		}

		if err := a.connect(ctx); err != nil {
			a.breaker.Failure()
			a.metrics.RecordError("source_connect")
			a.logger.Warn("source connect failed",
				xlogger.String("source", a.src.ID()), xlogger.Error(err))
			continue
		}

		a.consume(ctx, signals, prices)
	}
}

func (a *Adapter) connect(ctx context.Context) error {
	if err := a.src.Connect(ctx); err != nil {
		return &models.TransientSourceError{SourceID: a.src.ID(), Err: err}
	}
	if err := a.src.Subscribe(ctx); err != nil {
		return &models.TransientSourceError{SourceID: a.src.ID(), Err: err}
	}
	return nil
}

// consume forwards signals until the stream errors or ctx ends.
func (a *Adapter) consume(ctx context.Context, signals SignalSink, prices PriceSink) {
	sigCh, errCh := a.src.Read(ctx)

	var priceCh <-chan *models.PriceUpdate
	if ps, ok := a.src.(PriceStreamer); ok && prices != nil {
		priceCh = ps.Prices()
	}

	for {
		select {
		case <-ctx.Done():
			_ = a.src.Close()
			return
		case err := <-errCh:
			if err != nil {
				a.breaker.Failure()
				a.metrics.RecordError("source_stream")
				a.logger.Warn("source stream error",
					xlogger.String("source", a.src.ID()), xlogger.Error(err))
			}
			_ = a.src.Close()
			return
		case p := <-priceCh:
			if p != nil {
				prices(ctx, p)
			}
		case s := <-sigCh:
			if s == nil {
				continue
			}
			a.breaker.Success()
			a.metrics.RecordSignal(s.SourceID, s.AssetID)
			signals(ctx, s)
		}
	}
}

func (a *Adapter) sleepUntilCooldown(ctx context.Context) {
	until := a.breaker.CooldownUntil()
	wait := time.Until(until)
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
