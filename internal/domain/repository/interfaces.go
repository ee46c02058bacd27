package repository

import (
	"context"
	"time"

	"AlphaPilot/internal/domain/models"
)

// SignalSource is the capability interface every external alpha source
// implements. New sources implement this; nothing inherits.
type SignalSource interface {
	ID() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Signal, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Journal persists signals, fills and closed positions for audit and for
// outcome attribution.
type Journal interface {
	Init(ctx context.Context) error
	StoreSignal(ctx context.Context, s *models.Signal) error
	StoreFill(ctx context.Context, f *models.Fill) error
	StorePosition(ctx context.Context, p *models.Position) error
	// OutcomeBySource aggregates realized pnl per contributing source since
	// the given time; input to the weight-adaptation job.
	OutcomeBySource(ctx context.Context, since time.Time) (map[string]float64, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher pushes trade lifecycle events to the outside world.
type EventPublisher interface {
	PublishFill(ctx context.Context, f *models.Fill) error
	PublishPosition(ctx context.Context, p *models.Position) error
	Close() error
}

// Venue submits approved orders and reports resulting fills. The wire
// protocol behind it is owned by the external collaborator.
type Venue interface {
	SubmitOrder(ctx context.Context, assetID string, side models.Side, size, price float64) (*models.Fill, error)
	LastPrice(ctx context.Context, assetID string) (float64, error)
}

// Notifier surfaces out-of-band operator notifications: kill-switch
// engagement and allocation batches awaiting approval.
type Notifier interface {
	NotifyKillSwitch(ctx context.Context, state models.RiskState) error
	NotifyPendingAllocation(ctx context.Context, batch *models.AllocationBatch) error
}

// Metrics is the domain-facing observability surface.
type Metrics interface {
	RecordSignal(sourceID, assetID string)
	RecordCircuitTransition(sourceID, from, to string)
	RecordAlphaScore(assetID string, composite float64, tier string)
	RecordAdmit(verdict string)
	RecordFill(mode, reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
