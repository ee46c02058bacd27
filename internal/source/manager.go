package source

import (
	"context"
	"sort"
	"sync"

	"AlphaPilot/internal/domain/models"
	xlogger "AlphaPilot/pkg/logger"
)

// Manager owns all adapters and the per-source reliability weights. Each
// adapter runs in its own goroutine; only the slow weight-adaptation job
// ever writes a weight, always through AdjustWeight.
type Manager struct {
	mu       sync.RWMutex
	adapters map[string]*Adapter
	weights  map[string]float64
	logger   *xlogger.Logger
	wg       sync.WaitGroup
}

// NewManager creates an empty source manager.
func NewManager(logger *xlogger.Logger) *Manager {
	return &Manager{
		adapters: make(map[string]*Adapter),
		weights:  make(map[string]float64),
		logger:   logger,
	}
}

// Register adds an adapter with its initial reliability weight.
func (m *Manager) Register(a *Adapter, initialWeight float64) {
	if initialWeight == 0 {
		initialWeight = 1.0
	}
	m.mu.Lock()
	m.adapters[a.ID()] = a
	m.weights[a.ID()] = models.ClampWeight(initialWeight)
	m.mu.Unlock()
}

// Weight returns the current reliability weight for a source. Unknown
// sources get the neutral weight 1.0.
func (m *Manager) Weight(sourceID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.weights[sourceID]; ok {
		return w
	}
	return 1.0
}

// AdjustWeight moves a source's weight by delta, clamped to the allowed
// range, and returns the old and new values.
func (m *Manager) AdjustWeight(sourceID string, delta float64) (old, updated float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.weights[sourceID]
	if !ok {
		old = 1.0
	}
	updated = models.ClampWeight(old + delta)
	m.weights[sourceID] = updated
	return old, updated
}

// States snapshots every SourceState, sorted by source id for stable
// operator output.
func (m *Manager) States() []models.SourceState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SourceState, 0, len(m.adapters))
	for id, a := range m.adapters {
		circuit, consecutive, cooldown := a.circuitState()
		out = append(out, models.SourceState{
			SourceID:            id,
			ReliabilityWeight:   m.weights[id],
			Circuit:             circuit,
			ConsecutiveFailures: consecutive,
			CooldownUntil:       cooldown,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// StartAll launches one goroutine per adapter.
func (m *Manager) StartAll(ctx context.Context, signals SignalSink, prices PriceSink) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.adapters {
		a := a
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			a.Run(ctx, signals, prices)
		}()
		m.logger.Info("source adapter started", xlogger.String("source", a.ID()))
	}
}

// Wait blocks until every adapter loop has returned.
func (m *Manager) Wait() { m.wg.Wait() }
