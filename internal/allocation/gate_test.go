package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"AlphaPilot/internal/domain/models"
	"AlphaPilot/pkg/cache"
	xlogger "AlphaPilot/pkg/logger"
)

type captureNotifier struct {
	mu      sync.Mutex
	pending []models.AllocationBatch
}

func (n *captureNotifier) NotifyKillSwitch(context.Context, models.RiskState) error { return nil }

func (n *captureNotifier) NotifyPendingAllocation(_ context.Context, b *models.AllocationBatch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, *b)
	return nil
}

func testGate(cfg Config) (*Gate, *captureNotifier) {
	notifier := &captureNotifier{}
	return NewGate(cfg, cache.NewMemoryCache(), notifier, xlogger.Nop()), notifier
}

func defaultConfig() Config {
	return Config{
		ProfitThreshold:    100,
		AutoApproveCeiling: 500,
		Splits: []Split{
			{Destination: "treasury", Percent: 50},
			{Destination: "reinvest", Percent: 30},
			{Destination: "reserve", Percent: 20},
		},
	}
}

func TestAccrueBatchesAtThreshold(t *testing.T) {
	g, _ := testGate(defaultConfig())
	ctx := context.Background()

	if b := g.Accrue(ctx, 60); b != nil {
		t.Fatalf("batch formed below threshold: %+v", b)
	}
	b := g.Accrue(ctx, 40)
	if b == nil {
		t.Fatal("no batch at threshold")
	}
	if b.TotalAmount != 100 {
		t.Fatalf("batch amount = %v, want 100", b.TotalAmount)
	}
	if b.State != models.AllocationAutoApproved {
		t.Fatalf("state = %v, want auto-approved under ceiling", b.State)
	}
	// accumulator drained
	if b2 := g.Accrue(ctx, 50); b2 != nil {
		t.Fatalf("batch formed from drained accumulator: %+v", b2)
	}
}

func TestAccrueSplitsByPercent(t *testing.T) {
	g, _ := testGate(defaultConfig())

	b := g.Accrue(context.Background(), 200)
	if b == nil {
		t.Fatal("no batch")
	}
	want := map[string]float64{"treasury": 100, "reinvest": 60, "reserve": 40}
	if len(b.Splits) != 3 {
		t.Fatalf("splits = %d, want 3", len(b.Splits))
	}
	for _, s := range b.Splits {
		if s.Amount != want[s.Destination] {
			t.Fatalf("split %s = %v, want %v", s.Destination, s.Amount, want[s.Destination])
		}
	}
}

func TestLossesReduceAccumulatorWithoutBatching(t *testing.T) {
	g, _ := testGate(defaultConfig())
	ctx := context.Background()

	g.Accrue(ctx, 90)
	if b := g.Accrue(ctx, -50); b != nil {
		t.Fatalf("loss formed a batch: %+v", b)
	}
	// accumulator is now 40; another 60 reaches the threshold
	if b := g.Accrue(ctx, 60); b == nil {
		t.Fatal("no batch after recovering from the loss")
	}
}

func TestLargeBatchParksPendingAndNotifies(t *testing.T) {
	g, notifier := testGate(defaultConfig())

	b := g.Accrue(context.Background(), 800)
	if b == nil || b.State != models.AllocationPendingApproval {
		t.Fatalf("batch = %+v, want pending above ceiling", b)
	}
	if len(notifier.pending) != 1 || notifier.pending[0].ID != b.ID {
		t.Fatalf("pending notifications = %+v, want one for %s", notifier.pending, b.ID)
	}
	pending := g.Pending()
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Fatalf("pending list = %+v, want the parked batch", pending)
	}
}

func TestApproveResolvesPendingBatch(t *testing.T) {
	g, _ := testGate(defaultConfig())
	ctx := context.Background()

	b := g.Accrue(ctx, 800)
	resolved, err := g.Approve(ctx, b.ID, "ops")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.State != models.AllocationApproved {
		t.Fatalf("state = %v, want approved", resolved.State)
	}
	if resolved.ResolvedAt.IsZero() {
		t.Fatal("resolved timestamp not set")
	}
	if len(g.Pending()) != 0 {
		t.Fatal("batch still pending after approval")
	}
}

func TestRepeatedApproveIsIdempotent(t *testing.T) {
	g, _ := testGate(defaultConfig())
	ctx := context.Background()

	b := g.Accrue(ctx, 800)
	if _, err := g.Approve(ctx, b.ID, "ops"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	again, err := g.Approve(ctx, b.ID, "ops")
	if err != nil {
		t.Fatalf("repeated approve: %v", err)
	}
	if again.State != models.AllocationApproved {
		t.Fatalf("state after repeat = %v, want approved", again.State)
	}
}

func TestConflictingDecisionRejected(t *testing.T) {
	g, _ := testGate(defaultConfig())
	ctx := context.Background()

	b := g.Accrue(ctx, 800)
	if _, err := g.Approve(ctx, b.ID, "ops"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := g.Deny(ctx, b.ID, "ops"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("deny after approve = %v, want ErrAlreadyResolved", err)
	}
}

func TestDenyReturnsAmountToAccumulator(t *testing.T) {
	g, _ := testGate(defaultConfig())
	ctx := context.Background()

	b := g.Accrue(ctx, 800)
	denied, err := g.Deny(ctx, b.ID, "ops")
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if denied.State != models.AllocationDenied {
		t.Fatalf("state = %v, want denied", denied.State)
	}
	// the denied 800 is back in the accumulator, so any further profit
	// immediately re-forms a batch
	next := g.Accrue(ctx, 1)
	if next == nil || next.TotalAmount != 801 {
		t.Fatalf("batch after deny = %+v, want re-formed 801", next)
	}
}

func TestDecisionOnUnknownBatch(t *testing.T) {
	g, _ := testGate(defaultConfig())

	if _, err := g.Approve(context.Background(), "nope", "ops"); !errors.Is(err, ErrUnknownBatch) {
		t.Fatalf("approve unknown = %v, want ErrUnknownBatch", err)
	}
}
