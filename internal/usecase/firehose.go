package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AlphaPilot/internal/domain/models"
	xlogger "AlphaPilot/pkg/logger"
	"AlphaPilot/pkg/util"
)

// firehoseSignal is the wire shape on the aggregated firehose topic.
type firehoseSignal struct {
	SourceID     string   `json:"source_id"`
	AssetID      string   `json:"asset_id"`
	Direction    string   `json:"direction"`
	Strength     float64  `json:"strength"`
	ObservedAt   string   `json:"observed_at"`
	HalfLifeSecs int64    `json:"half_life_secs,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// FirehoseHandler feeds Kafka firehose batches into the signal pipeline.
// Retry and dead-lettering come from the consumer; a malformed payload is
// a permanent error and goes straight to the DLQ.
type FirehoseHandler struct {
	topic    string
	pipeline *SignalPipeline
	logger   *xlogger.Logger
}

func NewFirehoseHandler(topic string, pipeline *SignalPipeline, logger *xlogger.Logger) *FirehoseHandler {
	return &FirehoseHandler{topic: topic, pipeline: pipeline, logger: logger}
}

func (h *FirehoseHandler) Topic() string { return h.topic }

func (h *FirehoseHandler) Handle(ctx context.Context, data []byte) error {
	var raw firehoseSignal
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("firehose payload: %w", err)
	}

	s, err := raw.toSignal()
	if err != nil {
		return fmt.Errorf("firehose payload: %w", err)
	}

	h.pipeline.HandleSignal(ctx, s)
	return nil
}

func (r *firehoseSignal) toSignal() (*models.Signal, error) {
	if r.SourceID == "" || r.AssetID == "" {
		return nil, fmt.Errorf("missing source_id or asset_id")
	}

	var dir models.Direction
	switch r.Direction {
	case "bullish":
		dir = models.DirectionBullish
	case "bearish":
		dir = models.DirectionBearish
	case "neutral":
		dir = models.DirectionNeutral
	default:
		return nil, fmt.Errorf("unknown direction %q", r.Direction)
	}

	if r.Strength < 0 || r.Strength > 1 {
		return nil, fmt.Errorf("strength %f out of range", r.Strength)
	}

	observedAt, ok := util.ParseTime(r.ObservedAt)
	if !ok {
		return nil, fmt.Errorf("unparseable observed_at %q", r.ObservedAt)
	}

	return &models.Signal{
		SourceID:      r.SourceID,
		AssetID:       r.AssetID,
		Direction:     dir,
		Strength:      r.Strength,
		ObservedAt:    observedAt,
		DecayHalfLife: time.Duration(r.HalfLifeSecs) * time.Second,
		Tags:          r.Tags,
	}, nil
}
