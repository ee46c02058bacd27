package fusion

import (
	"math"
	"sort"
	"sync"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
)

// Config tunes the fusion engine. Every floor and horizon is deliberately
// configuration, not a constant.
type Config struct {
	Lookback           time.Duration
	DefaultHalfLife    time.Duration
	StalenessMultiple  float64
	HighFloor          float64
	MediumFloor        float64
	TrivialWeightFloor float64
}

// WeightProvider resolves the current reliability weight for a source.
type WeightProvider interface {
	Weight(sourceID string) float64
}

// Engine fuses all live signals per asset into one AlphaScore. Recomputation
// is triggered on every signal arrival and after weight adaptation; it is
// never polled. The composite is a pure function of (live signal set,
// source weights, clock), so replays are deterministic.
type Engine struct {
	cfg     Config
	weights WeightProvider
	metrics drepo.Metrics

	mu sync.RWMutex
	// latest signal per (asset, source); an incoming signal supersedes the
	// previous one from the same source
	signals map[string]map[string]*models.Signal
	scores  map[string]models.AlphaScore

	now func() time.Time
}

// NewEngine creates a fusion engine.
func NewEngine(cfg Config, weights WeightProvider, metrics drepo.Metrics) *Engine {
	if cfg.StalenessMultiple <= 0 {
		cfg.StalenessMultiple = 3
	}
	if cfg.DefaultHalfLife <= 0 {
		cfg.DefaultHalfLife = 30 * time.Minute
	}
	return &Engine{
		cfg:     cfg,
		weights: weights,
		metrics: metrics,
		signals: make(map[string]map[string]*models.Signal),
		scores:  make(map[string]models.AlphaScore),
		now:     time.Now,
	}
}

// Ingest records a signal and recomputes that asset's score.
func (e *Engine) Ingest(s *models.Signal) models.AlphaScore {
	e.mu.Lock()
	defer e.mu.Unlock()

	bySource, ok := e.signals[s.AssetID]
	if !ok {
		bySource = make(map[string]*models.Signal)
		e.signals[s.AssetID] = bySource
	}
	// ignore an observation older than the one already held
	if prev, ok := bySource[s.SourceID]; ok && s.ObservedAt.Before(prev.ObservedAt) {
		return e.scores[s.AssetID]
	}
	bySource[s.SourceID] = s

	score := e.computeLocked(s.AssetID, e.now())
	e.scores[s.AssetID] = score
	e.metrics.RecordAlphaScore(s.AssetID, score.CompositeStrength, string(score.Tier))
	return score
}

// Score returns the last computed score for an asset.
func (e *Engine) Score(assetID string) (models.AlphaScore, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.scores[assetID]
	return s, ok
}

// Recompute recalculates one asset's score from the current signal set,
// reporting whether the composite's sign flipped. The weight-adaptation job
// calls this for every tracked asset after moving a weight.
func (e *Engine) Recompute(assetID string) (models.AlphaScore, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.scores[assetID]
	score := e.computeLocked(assetID, e.now())
	e.scores[assetID] = score
	flipped := prev.CompositeStrength*score.CompositeStrength < 0
	e.metrics.RecordAlphaScore(assetID, score.CompositeStrength, string(score.Tier))
	return score, flipped
}

// Assets lists every asset with at least one retained signal.
func (e *Engine) Assets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.signals))
	for a := range e.signals {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// computeLocked derives the AlphaScore for one asset at the given instant.
// Caller holds e.mu.
func (e *Engine) computeLocked(assetID string, now time.Time) models.AlphaScore {
	bySource := e.signals[assetID]

	var weightedSum, weightTotal float64
	contributing := make([]string, 0, len(bySource))
	nonTrivial := 0

	for sourceID, s := range bySource {
		age := now.Sub(s.ObservedAt)
		halfLife := s.DecayHalfLife
		if halfLife <= 0 {
			halfLife = e.cfg.DefaultHalfLife
		}
		if e.expired(age, halfLife) {
			delete(bySource, sourceID)
			continue
		}

		w := models.ClampWeight(e.weights.Weight(sourceID))
		decay := math.Exp2(-age.Seconds() / halfLife.Seconds())
		weightedSum += w * decay * s.Signed()
		weightTotal += w * decay

		contributing = append(contributing, sourceID)
		if w >= e.cfg.TrivialWeightFloor && age <= e.cfg.Lookback {
			nonTrivial++
		}
	}
	sort.Strings(contributing)

	var composite float64
	if weightTotal > 0 {
		composite = weightedSum / weightTotal
	}
	if composite > 1 {
		composite = 1
	} else if composite < -1 {
		composite = -1
	}

	return models.AlphaScore{
		AssetID:             assetID,
		CompositeStrength:   composite,
		ContributingSources: contributing,
		Tier:                e.tier(composite, nonTrivial),
		ComputedAt:          now,
	}
}

func (e *Engine) expired(age, halfLife time.Duration) bool {
	if age < 0 {
		return false // clock skew; treat as fresh
	}
	if e.cfg.Lookback > 0 && age > e.cfg.Lookback {
		return true
	}
	limit := time.Duration(float64(halfLife) * e.cfg.StalenessMultiple)
	return age > limit
}

// tier applies the confluence rule: High needs corroboration from at least
// two non-trivially-weighted sources plus magnitude above the high floor.
func (e *Engine) tier(composite float64, nonTrivial int) models.ConfidenceTier {
	mag := math.Abs(composite)
	if nonTrivial >= 2 && mag >= e.cfg.HighFloor {
		return models.TierHigh
	}
	if nonTrivial >= 1 && mag >= e.cfg.MediumFloor {
		return models.TierMedium
	}
	return models.TierLow
}
