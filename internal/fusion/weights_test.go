package fusion

import (
	"context"
	"testing"
	"time"

	"AlphaPilot/internal/domain/models"
	xlogger "AlphaPilot/pkg/logger"
)

type outcomeJournal struct {
	outcomes map[string]float64
}

func (j *outcomeJournal) Init(context.Context) error                        { return nil }
func (j *outcomeJournal) StoreSignal(context.Context, *models.Signal) error { return nil }
func (j *outcomeJournal) StoreFill(context.Context, *models.Fill) error     { return nil }
func (j *outcomeJournal) StorePosition(context.Context, *models.Position) error {
	return nil
}

func (j *outcomeJournal) OutcomeBySource(context.Context, time.Time) (map[string]float64, error) {
	return j.outcomes, nil
}

func (j *outcomeJournal) Health(context.Context) error { return nil }
func (j *outcomeJournal) Close() error                 { return nil }

// movingWeights doubles as the engine's WeightProvider and the adapter's
// WeightMover, like source.Manager does in production.
type movingWeights map[string]float64

func (w movingWeights) Weight(sourceID string) float64 {
	if v, ok := w[sourceID]; ok {
		return v
	}
	return 1.0
}

func (w movingWeights) AdjustWeight(sourceID string, delta float64) (float64, float64) {
	old := w.Weight(sourceID)
	updated := models.ClampWeight(old + delta)
	w[sourceID] = updated
	return old, updated
}

func TestWeightAdapterMovesOneBoundedStep(t *testing.T) {
	weights := movingWeights{"winner": 1.0, "loser": 1.0}
	journal := &outcomeJournal{outcomes: map[string]float64{"winner": 42.0, "loser": -17.0}}
	engine := NewEngine(testConfig(), weights, nopMetrics{})
	adapter := NewWeightAdapter(journal, weights, engine, 0.05, time.Hour, xlogger.Nop())

	adapter.evaluate(context.Background())

	if w := weights["winner"]; w != 1.05 {
		t.Fatalf("winner weight = %v, want 1.05 after one step up", w)
	}
	if w := weights["loser"]; w != 0.95 {
		t.Fatalf("loser weight = %v, want 0.95 after one step down", w)
	}
}

func TestWeightAdapterClampsAtBounds(t *testing.T) {
	weights := movingWeights{"floor": models.MinReliabilityWeight}
	journal := &outcomeJournal{outcomes: map[string]float64{"floor": -5.0}}
	engine := NewEngine(testConfig(), weights, nopMetrics{})
	adapter := NewWeightAdapter(journal, weights, engine, 0.05, time.Hour, xlogger.Nop())

	adapter.evaluate(context.Background())

	if w := weights["floor"]; w != models.MinReliabilityWeight {
		t.Fatalf("weight = %v, want clamped at %v", w, models.MinReliabilityWeight)
	}
}

func TestWeightAdapterRecomputesAfterMove(t *testing.T) {
	weights := movingWeights{"onchain": 1.0}
	journal := &outcomeJournal{outcomes: map[string]float64{"onchain": 10.0}}
	engine := NewEngine(testConfig(), weights, nopMetrics{})
	clock := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return clock }

	engine.Ingest(sig("onchain", "tok1", models.DirectionBullish, 0.8, clock))
	before, _ := engine.Score("tok1")

	adapter := NewWeightAdapter(journal, weights, engine, 0.05, time.Hour, xlogger.Nop())
	adapter.evaluate(context.Background())

	after, ok := engine.Score("tok1")
	if !ok {
		t.Fatal("score dropped by recompute")
	}
	// single bullish source: weight moves do not change the normalized
	// composite, only the recompute timestamp and tier inputs
	if after.CompositeStrength != before.CompositeStrength {
		t.Fatalf("composite changed for single-source asset: %v -> %v", before.CompositeStrength, after.CompositeStrength)
	}
}
