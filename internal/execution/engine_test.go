package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"AlphaPilot/internal/domain/models"
	"AlphaPilot/internal/risk"
	xlogger "AlphaPilot/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, string)                    {}
func (nopMetrics) RecordCircuitTransition(string, string, string) {}
func (nopMetrics) RecordAlphaScore(string, float64, string)       {}
func (nopMetrics) RecordAdmit(string)                             {}
func (nopMetrics) RecordFill(string, string)                      {}
func (nopMetrics) RecordError(string)                             {}
func (nopMetrics) RecordLatency(string, float64)                  {}

// fakeVenue fills every order at the requested price unless failNext is set.
type fakeVenue struct {
	mu       sync.Mutex
	mode     models.ExecutionMode
	failNext error
	orders   []models.Fill
}

func (v *fakeVenue) SubmitOrder(_ context.Context, assetID string, side models.Side, size, price float64) (*models.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failNext != nil {
		err := v.failNext
		v.failNext = nil
		return nil, err
	}
	f := models.Fill{
		AssetID:  assetID,
		Side:     side,
		Price:    price,
		Size:     size,
		Mode:     v.mode,
		FilledAt: time.Now(),
	}
	v.orders = append(v.orders, f)
	return &f, nil
}

func (v *fakeVenue) LastPrice(_ context.Context, _ string) (float64, error) {
	return 1.0, nil
}

type memJournal struct {
	mu        sync.Mutex
	fills     []models.Fill
	positions []models.Position
}

func (j *memJournal) Init(context.Context) error { return nil }

func (j *memJournal) StoreSignal(context.Context, *models.Signal) error { return nil }

func (j *memJournal) StoreFill(_ context.Context, f *models.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fills = append(j.fills, *f)
	return nil
}

func (j *memJournal) StorePosition(_ context.Context, p *models.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.positions = append(j.positions, *p)
	return nil
}

func (j *memJournal) OutcomeBySource(context.Context, time.Time) (map[string]float64, error) {
	return nil, nil
}

func (j *memJournal) Health(context.Context) error { return nil }

func (j *memJournal) Close() error { return nil }

type memPublisher struct {
	mu        sync.Mutex
	fills     []models.Fill
	positions []models.Position
}

func (p *memPublisher) PublishFill(_ context.Context, f *models.Fill) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills = append(p.fills, *f)
	return nil
}

func (p *memPublisher) PublishPosition(_ context.Context, pos *models.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = append(p.positions, *pos)
	return nil
}

func (p *memPublisher) Close() error { return nil }

type memSink struct {
	mu      sync.Mutex
	accrued []float64
}

func (s *memSink) Accrue(_ context.Context, pnl float64) *models.AllocationBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accrued = append(s.accrued, pnl)
	return nil
}

type harness struct {
	engine   *Engine
	venue    *fakeVenue
	governor *risk.Governor
	journal  *memJournal
	events   *memPublisher
	profits  *memSink
}

func newHarness(t *testing.T, cfg Config) *harness {
	return newHarnessRisk(t, cfg, risk.Config{
		MaxOpenPositions:     10,
		PerPositionCeiling:   1,
		PortfolioExposureCap: 10,
		DrawdownFraction:     0.9,
		InitialEquity:        1000,
	})
}

func newHarnessRisk(t *testing.T, cfg Config, riskCfg risk.Config) *harness {
	t.Helper()
	venue := &fakeVenue{mode: cfg.Mode}
	journal := &memJournal{}
	events := &memPublisher{}
	profits := &memSink{}
	governor := risk.NewGovernor(riskCfg, xlogger.Nop(), nopMetrics{}, nil)
	engine := NewEngine(cfg, venue, governor, journal, events, profits, xlogger.Nop(), nopMetrics{})
	return &harness{engine: engine, venue: venue, governor: governor, journal: journal, events: events, profits: profits}
}

func ladderConfig(mode models.ExecutionMode, moonbag float64) Config {
	return Config{
		Mode:             mode,
		TPMultiples:      []float64{2, 4},
		TPSellFractions:  []float64{0.5, 0.25},
		StopLossFraction: 0.5,
		MoonbagFraction:  moonbag,
	}
}

func openPosition(t *testing.T, h *harness, size float64) *models.Position {
	t.Helper()
	ctx := context.Background()
	d := h.governor.Admit(ctx, &models.TradeProposal{
		AssetID:               "tok1",
		Side:                  models.SideBuy,
		RequestedSizeFraction: size,
		Consensus:             models.ConsensusApprove,
	})
	if d.Verdict != models.AdmitApproved {
		t.Fatalf("admission denied: %s", d.Reason)
	}
	pos, err := h.engine.Open(ctx, &models.TradeProposal{
		AssetID:   "tok1",
		Side:      models.SideBuy,
		Consensus: models.ConsensusApprove,
	}, d.ApprovedSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return pos
}

func tick(h *harness, price float64) {
	h.engine.OnPrice(context.Background(), &models.PriceUpdate{
		AssetID:    "tok1",
		Price:      price,
		ObservedAt: time.Now(),
	})
}

func TestLadderFillsRungsAndKeepsMoonbag(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0.25))
	pos := openPosition(t, h, 1.0)

	// entry at 1.0: first rung at 2x sells half the initial size
	tick(h, 2.0)
	open := h.engine.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions = %d, want 1", len(open))
	}
	if open[0].Size != 0.5 {
		t.Fatalf("size after first rung = %v, want 0.5", open[0].Size)
	}
	if open[0].Status != models.StatusPartiallyClosed {
		t.Fatalf("status = %v, want partially closed", open[0].Status)
	}

	// second rung at 4x sells a quarter of the initial size, leaving the
	// moonbag residual open
	tick(h, 4.0)
	open = h.engine.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions after ladder = %d, want moonbag to stay open", len(open))
	}
	if open[0].Size != 0.25 {
		t.Fatalf("moonbag size = %v, want 0.25", open[0].Size)
	}
	if open[0].ID != pos.ID {
		t.Fatalf("position identity changed across rungs")
	}
}

func TestLadderClosesOutWithoutMoonbag(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0))
	openPosition(t, h, 1.0)

	tick(h, 2.0)
	tick(h, 4.0)

	if open := h.engine.OpenPositions(); len(open) != 0 {
		t.Fatalf("open positions = %d, want closed out after full ladder", len(open))
	}
	if snap := h.governor.Snapshot(); snap.OpenPositionCount != 0 {
		t.Fatalf("governor slot not freed, state = %+v", snap)
	}
	// currency pnl on a 1000 book at entry 1.0:
	// rungs 0.5*1000*(2-1) + 0.25*1000*(4-1), residual 0.25*1000*(4-1)
	wantPnL := 500.0 + 750.0 + 750.0
	total := 0.0
	for _, p := range h.profits.accrued {
		total += p
	}
	if total != wantPnL {
		t.Fatalf("accrued pnl = %v, want %v", total, wantPnL)
	}
	last := h.journal.fills[len(h.journal.fills)-1]
	if last.Reason != "ladder_closeout" {
		t.Fatalf("closeout reason = %q, want ladder_closeout", last.Reason)
	}
}

func TestStopLossDominatesAndExitsFull(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0.25))
	openPosition(t, h, 1.0)

	tick(h, 0.5)

	if open := h.engine.OpenPositions(); len(open) != 0 {
		t.Fatalf("open positions = %d, want full exit on stop loss", len(open))
	}
	last := h.venue.orders[len(h.venue.orders)-1]
	if last.Size != 1.0 || last.Side != models.SideSell {
		t.Fatalf("stop loss order = %+v, want full-size sell", last)
	}
	// full 1.0 fraction of the 1000 book bought at 1.0 sold at 0.5
	total := 0.0
	for _, p := range h.profits.accrued {
		total += p
	}
	if total != -500 {
		t.Fatalf("accrued pnl = %v, want -500", total)
	}
}

func TestWipeoutThroughFillsEngagesKillSwitch(t *testing.T) {
	h := newHarnessRisk(t, ladderConfig(models.ModePaper, 0), risk.Config{
		MaxOpenPositions:     10,
		PerPositionCeiling:   1,
		PortfolioExposureCap: 10,
		DrawdownFraction:     0.3,
		InitialEquity:        1000,
	})
	openPosition(t, h, 0.5)

	// entry 1.0, crash to 0.25: the 0.5 fraction of the 1000 book loses
	// 0.5*1000*(0.25-1) = -375 currency, past the -300 drawdown limit
	tick(h, 0.25)

	snap := h.governor.Snapshot()
	if snap.RealizedPnLToday != -375 {
		t.Fatalf("realized pnl = %v, want -375", snap.RealizedPnLToday)
	}
	if !snap.KillSwitchEngaged {
		t.Fatalf("kill switch not engaged by the wipeout, state = %+v", snap)
	}
	d := h.governor.Admit(context.Background(), &models.TradeProposal{
		AssetID:               "tok2",
		Side:                  models.SideBuy,
		RequestedSizeFraction: 0.01,
		Consensus:             models.ConsensusApprove,
	})
	if d.Verdict != models.AdmitDenied {
		t.Fatalf("verdict after wipeout = %v, want denied", d.Verdict)
	}
}

func TestFailedEntryReleasesGovernorBudget(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0))
	ctx := context.Background()

	d := h.governor.Admit(ctx, &models.TradeProposal{
		AssetID:               "tok1",
		RequestedSizeFraction: 0.5,
		Consensus:             models.ConsensusApprove,
	})
	h.venue.failNext = errors.New("venue offline")

	_, err := h.engine.Open(ctx, &models.TradeProposal{AssetID: "tok1", Side: models.SideBuy}, d.ApprovedSize)
	if err == nil {
		t.Fatal("open succeeded against a failing venue")
	}
	var failure *models.ExecutionFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error type = %T, want ExecutionFailure", err)
	}
	snap := h.governor.Snapshot()
	if snap.OpenPositionCount != 0 || snap.ReservedExposure != 0 {
		t.Fatalf("budget not released after failed entry, state = %+v", snap)
	}
}

func TestOpenRejectsSellSideProposal(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0))
	ctx := context.Background()

	d := h.governor.Admit(ctx, &models.TradeProposal{
		AssetID:               "tok1",
		Side:                  models.SideSell,
		RequestedSizeFraction: 0.5,
		Consensus:             models.ConsensusApprove,
	})

	// the ladder and stop assume a buy entry; a short must never open
	_, err := h.engine.Open(ctx, &models.TradeProposal{AssetID: "tok1", Side: models.SideSell}, d.ApprovedSize)
	if err == nil {
		t.Fatal("sell-side proposal opened a position")
	}
	if len(h.venue.orders) != 0 {
		t.Fatalf("venue orders = %d, want none for a rejected side", len(h.venue.orders))
	}
	snap := h.governor.Snapshot()
	if snap.OpenPositionCount != 0 || snap.ReservedExposure != 0 {
		t.Fatalf("budget not released, state = %+v", snap)
	}
}

func TestPaperAndLiveShareLadderBehavior(t *testing.T) {
	for _, mode := range []models.ExecutionMode{models.ModePaper, models.ModeLive} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, ladderConfig(mode, 0))
			pos := openPosition(t, h, 1.0)
			if pos.Mode != mode {
				t.Fatalf("position mode = %v, want %v", pos.Mode, mode)
			}

			tick(h, 2.0)
			tick(h, 4.0)

			if open := h.engine.OpenPositions(); len(open) != 0 {
				t.Fatalf("open positions = %d, want 0", len(open))
			}
			if len(h.events.positions) != 1 {
				t.Fatalf("position events = %d, want 1", len(h.events.positions))
			}
			closed := h.events.positions[0]
			if closed.Status != models.StatusClosed {
				t.Fatalf("published status = %v, want closed", closed.Status)
			}
			if closed.Mode != mode {
				t.Fatalf("published mode = %v, want %v", closed.Mode, mode)
			}
		})
	}
}

func TestRungFillsOnlyOnce(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0.25))
	openPosition(t, h, 1.0)

	tick(h, 2.0)
	tick(h, 2.0)

	open := h.engine.OpenPositions()
	if len(open) != 1 || open[0].Size != 0.5 {
		t.Fatalf("size after repeated tick = %+v, want single rung fill", open)
	}
}

func TestFillsJournaledAndPublished(t *testing.T) {
	h := newHarness(t, ladderConfig(models.ModePaper, 0))
	openPosition(t, h, 1.0)
	tick(h, 2.0)

	// entry plus one rung
	if len(h.journal.fills) != 2 {
		t.Fatalf("journaled fills = %d, want 2", len(h.journal.fills))
	}
	if len(h.events.fills) != 2 {
		t.Fatalf("published fills = %d, want 2", len(h.events.fills))
	}
	if h.journal.fills[0].Reason != "entry" {
		t.Fatalf("first fill reason = %q, want entry", h.journal.fills[0].Reason)
	}
	if h.journal.fills[1].Reason != "tp_rung_1" {
		t.Fatalf("second fill reason = %q, want tp_rung_1", h.journal.fills[1].Reason)
	}
}
