package allocation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/pkg/cache"
	xlogger "AlphaPilot/pkg/logger"
)

var (
	// ErrUnknownBatch is returned for approval decisions on ids the gate
	// does not hold.
	ErrUnknownBatch = errors.New("allocation: unknown batch")
	// ErrAlreadyResolved is returned when a second, conflicting decision
	// arrives for a resolved batch.
	ErrAlreadyResolved = errors.New("allocation: batch already resolved")
)

// Split is a configured percentage destination.
type Split struct {
	Destination string
	Percent     float64
}

// Config bounds the allocation gate.
type Config struct {
	ProfitThreshold    float64 // minimum realized profit before a batch forms
	AutoApproveCeiling float64 // batches at or under this resolve without an operator
	Splits             []Split
	DecisionTTL        time.Duration // idempotency window for operator decisions
}

// Gate accumulates realized profit and distributes it by fixed percentage
// splits. Batches above the auto-approve ceiling park in pending until an
// operator approves or denies; decisions are idempotent across replicas via
// a shared lock key.
type Gate struct {
	cfg      Config
	cache    cache.Service
	notifier drepo.Notifier
	logger   *xlogger.Logger

	mu          sync.Mutex
	accumulated float64
	batches     map[string]*models.AllocationBatch
}

func NewGate(cfg Config, c cache.Service, notifier drepo.Notifier, logger *xlogger.Logger) *Gate {
	if cfg.DecisionTTL <= 0 {
		cfg.DecisionTTL = 24 * time.Hour
	}
	return &Gate{
		cfg:      cfg,
		cache:    c,
		notifier: notifier,
		logger:   logger,
		batches:  make(map[string]*models.AllocationBatch),
	}
}

// Accrue adds realized profit and forms a batch once the threshold is met.
// Losses reduce the accumulator but never form a batch.
func (g *Gate) Accrue(ctx context.Context, pnl float64) *models.AllocationBatch {
	g.mu.Lock()
	g.accumulated += pnl
	if g.accumulated < g.cfg.ProfitThreshold {
		g.mu.Unlock()
		return nil
	}
	amount := g.accumulated
	g.accumulated = 0
	batch := g.buildBatch(amount)
	g.batches[batch.ID] = batch
	g.mu.Unlock()

	if batch.Pending() {
		g.logger.Info("allocation batch awaiting approval",
			xlogger.String("batch", batch.ID),
			xlogger.Float64("amount", batch.TotalAmount))
		if g.notifier != nil {
			if err := g.notifier.NotifyPendingAllocation(ctx, batch); err != nil {
				g.logger.Warn("allocation notification failed", xlogger.Error(err))
			}
		}
	} else {
		g.logger.Info("allocation batch auto-approved",
			xlogger.String("batch", batch.ID),
			xlogger.Float64("amount", batch.TotalAmount))
	}
	return batch
}

// Approve resolves a pending batch. A repeated approve of an approved batch
// is a no-op success; approve after deny is a conflict.
func (g *Gate) Approve(ctx context.Context, batchID, operator string) (*models.AllocationBatch, error) {
	return g.resolve(ctx, batchID, operator, models.AllocationApproved)
}

// Deny resolves a pending batch; the amount returns to the accumulator so
// the profit is not silently dropped.
func (g *Gate) Deny(ctx context.Context, batchID, operator string) (*models.AllocationBatch, error) {
	batch, err := g.resolve(ctx, batchID, operator, models.AllocationDenied)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.accumulated += batch.TotalAmount
	g.mu.Unlock()
	return batch, nil
}

// Pending returns pending batches, oldest first.
func (g *Gate) Pending() []models.AllocationBatch {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.AllocationBatch, 0, len(g.batches))
	for _, b := range g.batches {
		if b.Pending() {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (g *Gate) resolve(ctx context.Context, batchID, operator string, state models.ApprovalState) (*models.AllocationBatch, error) {
	// the shared lock makes the first decision win across replicas; a
	// repeat of the same decision reads back as idempotent success
	acquired, err := g.cache.TryLock(ctx, cache.GenerateKeyWithParams("allocation", "decision", batchID), g.cfg.DecisionTTL)
	if err != nil {
		g.logger.Warn("allocation decision lock failed", xlogger.Error(err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	batch, ok := g.batches[batchID]
	if !ok {
		return nil, ErrUnknownBatch
	}
	if !batch.Pending() {
		if batch.State == state {
			return batch, nil
		}
		return nil, ErrAlreadyResolved
	}
	if err == nil && !acquired {
		// another replica resolved it first; report the local view
		return batch, ErrAlreadyResolved
	}

	batch.State = state
	batch.ResolvedAt = time.Now()
	g.logger.Info("allocation batch resolved",
		xlogger.String("batch", batchID),
		xlogger.String("state", string(state)),
		xlogger.String("operator", operator))
	return batch, nil
}

func (g *Gate) buildBatch(amount float64) *models.AllocationBatch {
	splits := make([]models.AllocationSplit, len(g.cfg.Splits))
	for i, s := range g.cfg.Splits {
		splits[i] = models.AllocationSplit{
			Destination: s.Destination,
			Percent:     s.Percent,
			Amount:      amount * s.Percent / 100,
		}
	}
	state := models.AllocationAutoApproved
	if amount > g.cfg.AutoApproveCeiling {
		state = models.AllocationPendingApproval
	}
	return &models.AllocationBatch{
		ID:          uuid.NewString(),
		TotalAmount: amount,
		Splits:      splits,
		State:       state,
		CreatedAt:   time.Now(),
	}
}
