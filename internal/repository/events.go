package repository

import (
	"context"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/pkg/kafka"
)

// Topics for trade lifecycle events.
const (
	TopicFills     = "alphapilot.fills"
	TopicPositions = "alphapilot.positions"
)

type fillEvent struct {
	PositionID string  `json:"position_id"`
	AssetID    string  `json:"asset_id"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Mode       string  `json:"mode"`
	Reason     string  `json:"reason"`
	FilledAt   string  `json:"filled_at"`
}

type positionEvent struct {
	ID          string  `json:"id"`
	AssetID     string  `json:"asset_id"`
	Mode        string  `json:"mode"`
	Status      string  `json:"status"`
	EntryPrice  float64 `json:"entry_price"`
	InitialSize float64 `json:"initial_size"`
	RealizedPnL float64 `json:"realized_pnl"`
	OpenedAt    string  `json:"opened_at"`
	ClosedAt    string  `json:"closed_at,omitempty"`
}

// KafkaPublisher pushes lifecycle events to Kafka, keyed by asset so all
// events of one asset land on one partition in order.
type KafkaPublisher struct {
	producer *kafka.Producer
}

var _ drepo.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) PublishFill(ctx context.Context, f *models.Fill) error {
	return p.producer.Publish(ctx, TopicFills, []byte(f.AssetID), fillEvent{
		PositionID: f.PositionID,
		AssetID:    f.AssetID,
		Side:       string(f.Side),
		Price:      f.Price,
		Size:       f.Size,
		Mode:       string(f.Mode),
		Reason:     f.Reason,
		FilledAt:   f.FilledAt.UTC().Format(time.RFC3339Nano),
	})
}

func (p *KafkaPublisher) PublishPosition(ctx context.Context, pos *models.Position) error {
	ev := positionEvent{
		ID:          pos.ID,
		AssetID:     pos.AssetID,
		Mode:        string(pos.Mode),
		Status:      string(pos.Status),
		EntryPrice:  pos.EntryPrice,
		InitialSize: pos.InitialSize,
		RealizedPnL: pos.RealizedPnL,
		OpenedAt:    pos.OpenedAt.UTC().Format(time.RFC3339Nano),
	}
	if !pos.ClosedAt.IsZero() {
		ev.ClosedAt = pos.ClosedAt.UTC().Format(time.RFC3339Nano)
	}
	return p.producer.Publish(ctx, TopicPositions, []byte(pos.AssetID), ev)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops events. Used when no broker is configured, so the
// trading loop never depends on Kafka being present.
type NopPublisher struct{}

var _ drepo.EventPublisher = NopPublisher{}

func (NopPublisher) PublishFill(context.Context, *models.Fill) error         { return nil }
func (NopPublisher) PublishPosition(context.Context, *models.Position) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
