package validation

import (
	"context"
	"errors"
	"sort"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/internal/source"
	"AlphaPilot/pkg/cache"
	xlogger "AlphaPilot/pkg/logger"
)

// FactsSource reads the on-venue facts the battery inspects.
type FactsSource interface {
	Facts(ctx context.Context, assetID string) (*AssetFacts, error)
}

// Gate is the stateless safety check battery. Verdicts are cached for a few
// minutes and invalidated early when a liquidity-removal signal arrives.
// Each check runs under its own timeout and circuit breaker, so one flaky
// venue endpoint cannot stall the whole battery.
type Gate struct {
	venue      FactsSource
	checks     map[string]CheckFunc
	breakers   map[string]*source.Breaker
	checkOrder []string

	cache   cache.Service
	ttl     time.Duration
	timeout time.Duration

	logger  *xlogger.Logger
	metrics drepo.Metrics
}

// Config tunes the gate.
type Config struct {
	VerdictTTL   time.Duration
	CheckTimeout time.Duration
	Thresholds   Thresholds
	Breaker      source.BreakerConfig
}

// NewGate builds the gate with one breaker per check.
func NewGate(cfg Config, venue FactsSource, c cache.Service, logger *xlogger.Logger, metrics drepo.Metrics) *Gate {
	if cfg.VerdictTTL <= 0 {
		cfg.VerdictTTL = 5 * time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 3 * time.Second
	}

	checks := battery(cfg.Thresholds)
	order := make([]string, 0, len(checks))
	for name := range checks {
		order = append(order, name)
	}
	sort.Strings(order)

	breakers := make(map[string]*source.Breaker, len(checks))
	for name := range checks {
		name := name
		breakers[name] = source.NewBreaker("check:"+name, cfg.Breaker,
			func(id string, from, to models.CircuitState) {
				metrics.RecordCircuitTransition(id, string(from), string(to))
				logger.Warn("validation check circuit transition",
					xlogger.String("check", id),
					xlogger.String("from", string(from)),
					xlogger.String("to", string(to)))
			})
	}

	return &Gate{
		venue:      venue,
		checks:     checks,
		breakers:   breakers,
		checkOrder: order,
		cache:      c,
		ttl:        cfg.VerdictTTL,
		timeout:    cfg.CheckTimeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// Validate returns the (possibly cached) verdict for an asset. A verdict
// with Passed=false is an ordinary value, not an error.
func (g *Gate) Validate(ctx context.Context, assetID string) models.ValidationVerdict {
	if v, ok := g.cached(ctx, assetID); ok {
		return v
	}

	verdict := models.ValidationVerdict{
		AssetID:   assetID,
		CheckedAt: time.Now(),
		TTL:       g.ttl,
	}

	for _, name := range g.checkOrder {
		if err := g.runCheck(ctx, name, assetID); err != nil {
			verdict.FailedChecks = append(verdict.FailedChecks, name)
			g.logger.Debug("validation check failed",
				xlogger.String("asset", assetID),
				xlogger.String("check", name),
				xlogger.Error(err))
		}
	}
	verdict.Passed = len(verdict.FailedChecks) == 0

	g.store(ctx, verdict)
	return verdict
}

// Invalidate drops any cached verdict early, e.g. on a liquidity pull.
func (g *Gate) Invalidate(ctx context.Context, assetID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, verdictKey(assetID)); err != nil {
		g.metrics.RecordError("verdict_invalidate")
	}
}

// runCheck executes one named check under its breaker and timeout. An
// unavailable check fails closed: an asset we cannot inspect is not
// tradable.
func (g *Gate) runCheck(ctx context.Context, name string, assetID string) error {
	br := g.breakers[name]
	if !br.Allow() {
		return errors.New("check unavailable: circuit open")
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	facts, err := g.venue.Facts(cctx, assetID)
	if err != nil {
		br.Failure()
		g.metrics.RecordError("validation_fetch")
		return err
	}
	br.Success()

	return g.checks[name](facts)
}

func (g *Gate) cached(ctx context.Context, assetID string) (models.ValidationVerdict, bool) {
	if g.cache == nil {
		return models.ValidationVerdict{}, false
	}
	var v models.ValidationVerdict
	if err := g.cache.Get(ctx, verdictKey(assetID), &v); err != nil {
		return models.ValidationVerdict{}, false
	}
	if v.Expired(time.Now()) {
		return models.ValidationVerdict{}, false
	}
	return v, true
}

func (g *Gate) store(ctx context.Context, v models.ValidationVerdict) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, verdictKey(v.AssetID), v, g.ttl); err != nil {
		g.metrics.RecordError("verdict_cache")
	}
}

func verdictKey(assetID string) string { return cache.GenerateKey("verdict", assetID) }
