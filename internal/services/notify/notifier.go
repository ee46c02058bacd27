package notify

import (
	"context"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/pkg/kafka"
	xlogger "AlphaPilot/pkg/logger"
)

// TopicAlerts carries operator alerts so external pagers can subscribe.
const TopicAlerts = "alphapilot.alerts"

type alertEvent struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Notifier writes operator alerts to the log and, when a producer is
// configured, to the alerts topic. A publish failure never blocks the
// caller: the log line is the notification of record.
type Notifier struct {
	producer *kafka.Producer
	logger   *xlogger.Logger
}

var _ drepo.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier; producer may be nil.
func NewNotifier(producer *kafka.Producer, logger *xlogger.Logger) *Notifier {
	return &Notifier{producer: producer, logger: logger}
}

func (n *Notifier) NotifyKillSwitch(ctx context.Context, state models.RiskState) error {
	n.logger.Error("OPERATOR ALERT: kill switch engaged",
		xlogger.String("reason", state.KillSwitchReason),
		xlogger.Float64("realized_pnl", state.RealizedPnLToday),
		xlogger.Float64("high_water_mark", state.EquityHighWaterMark))
	return n.publish(ctx, "kill_switch_engaged", state)
}

func (n *Notifier) NotifyPendingAllocation(ctx context.Context, batch *models.AllocationBatch) error {
	n.logger.Warn("OPERATOR ALERT: allocation awaiting approval",
		xlogger.String("batch", batch.ID),
		xlogger.Float64("amount", batch.TotalAmount))
	return n.publish(ctx, "allocation_pending", batch)
}

func (n *Notifier) publish(ctx context.Context, kind string, payload interface{}) error {
	if n.producer == nil {
		return nil
	}
	if err := n.producer.Publish(ctx, TopicAlerts, []byte(kind), alertEvent{Kind: kind, Payload: payload}); err != nil {
		n.logger.Warn("alert publish failed", xlogger.Error(err))
	}
	return nil
}
