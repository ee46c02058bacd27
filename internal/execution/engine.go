package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/internal/risk"
	xlogger "AlphaPilot/pkg/logger"
)

// Config selects the execution mode and the exit ladder applied to every
// opened position.
type Config struct {
	Mode             models.ExecutionMode
	TPMultiples      []float64
	TPSellFractions  []float64
	StopLossFraction float64
	MoonbagFraction  float64
}

// ProfitSink receives the realized pnl of every closed position.
type ProfitSink interface {
	Accrue(ctx context.Context, pnl float64) *models.AllocationBatch
}

// Engine opens positions admitted by the risk governor and drives their
// lifecycle off price updates. Paper and live mode share this code in full;
// only the Venue behind it differs.
type Engine struct {
	cfg      Config
	venue    drepo.Venue
	governor *risk.Governor
	journal  drepo.Journal
	events   drepo.EventPublisher
	profits  ProfitSink
	logger   *xlogger.Logger
	metrics  drepo.Metrics

	mu        sync.Mutex
	positions map[string]*models.Position // open, keyed by position id
	byAsset   map[string][]string
}

func NewEngine(cfg Config, venue drepo.Venue, governor *risk.Governor, journal drepo.Journal, events drepo.EventPublisher, profits ProfitSink, logger *xlogger.Logger, metrics drepo.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		venue:     venue,
		governor:  governor,
		journal:   journal,
		events:    events,
		profits:   profits,
		logger:    logger,
		metrics:   metrics,
		positions: make(map[string]*models.Position),
		byAsset:   make(map[string][]string),
	}
}

// Open turns an admitted proposal into an open position. A failed venue
// submission releases the reserved risk budget before returning.
func (e *Engine) Open(ctx context.Context, p *models.TradeProposal, approvedSize float64) (*models.Position, error) {
	// positions are long-only: the ladder, stop and pnl all assume a buy
	// entry, so a sell-side proposal can never become a position
	if p.Side != models.SideBuy {
		e.governor.Release(approvedSize)
		return nil, &models.ExecutionFailure{PositionID: p.AssetID, Err: fmt.Errorf("unsupported side %q", p.Side)}
	}

	// price hint only; the venue is free to fill at its own mark
	price, _ := e.venue.LastPrice(ctx, p.AssetID)

	fill, err := e.venue.SubmitOrder(ctx, p.AssetID, p.Side, approvedSize, price)
	if err != nil {
		e.governor.Release(approvedSize)
		e.metrics.RecordError("entry_submission")
		return nil, &models.ExecutionFailure{PositionID: p.AssetID, Err: err}
	}

	pos := &models.Position{
		ID:               uuid.NewString(),
		AssetID:          p.AssetID,
		Mode:             e.cfg.Mode,
		EntryPrice:       fill.Price,
		Size:             approvedSize,
		InitialSize:      approvedSize,
		TPLadder:         e.ladder(),
		StopLossFraction: e.cfg.StopLossFraction,
		MoonbagFraction:  e.cfg.MoonbagFraction,
		Status:           models.StatusOpen,
		OpenedAt:         fill.FilledAt,
	}
	fill.PositionID = pos.ID
	fill.Reason = "entry"

	e.mu.Lock()
	e.positions[pos.ID] = pos
	e.byAsset[pos.AssetID] = append(e.byAsset[pos.AssetID], pos.ID)
	e.mu.Unlock()

	e.recordFill(ctx, fill)
	if err := e.journal.StorePosition(ctx, pos); err != nil {
		e.logger.Warn("position journal write failed", xlogger.Error(err))
	}
	e.logger.Info("position opened",
		xlogger.String("position", pos.ID),
		xlogger.String("asset", pos.AssetID),
		xlogger.String("mode", string(pos.Mode)),
		xlogger.Float64("size", approvedSize),
		xlogger.Float64("entry", fill.Price))
	return pos, nil
}

// OnPrice evaluates the exit ladder of every open position on the asset.
// Stop loss dominates: once breached, the remainder exits in full even if
// a rung would also trigger on the same tick.
func (e *Engine) OnPrice(ctx context.Context, u *models.PriceUpdate) {
	e.mu.Lock()
	ids := append([]string(nil), e.byAsset[u.AssetID]...)
	e.mu.Unlock()

	for _, id := range ids {
		e.evaluate(ctx, id, u.Price)
	}
}

// OpenPositions returns copies of every non-terminal position, sorted by
// opening time for stable reporting.
func (e *Engine) OpenPositions() []models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (e *Engine) evaluate(ctx context.Context, positionID string, price float64) {
	e.mu.Lock()
	pos, ok := e.positions[positionID]
	if !ok || pos.Terminal() || pos.Size <= 0 {
		e.mu.Unlock()
		return
	}
	snapshot := *pos
	e.mu.Unlock()

	if price <= snapshot.EntryPrice*(1-snapshot.StopLossFraction) {
		e.exitFull(ctx, positionID, price, "stop_loss")
		return
	}

	for i := range snapshot.TPLadder {
		rung := snapshot.TPLadder[i]
		if rung.Filled || price < snapshot.EntryPrice*rung.PriceMultiple {
			continue
		}
		e.fillRung(ctx, positionID, i, price)
	}
}

// fillRung sells the rung's fraction of the initial size. Filling the last
// rung with no moonbag configured closes whatever remains.
func (e *Engine) fillRung(ctx context.Context, positionID string, rung int, price float64) {
	e.mu.Lock()
	pos, ok := e.positions[positionID]
	if !ok || pos.Terminal() || pos.TPLadder[rung].Filled {
		e.mu.Unlock()
		return
	}
	sellSize := pos.TPLadder[rung].SellFraction * pos.InitialSize
	if sellSize > pos.Size {
		sellSize = pos.Size
	}
	assetID, entry := pos.AssetID, pos.EntryPrice
	e.mu.Unlock()

	fill, err := e.venue.SubmitOrder(ctx, assetID, models.SideSell, sellSize, price)
	if err != nil {
		e.metrics.RecordError("tp_submission")
		e.logger.Warn("take-profit submission failed",
			xlogger.String("position", positionID),
			xlogger.Int("rung", rung),
			xlogger.Error(err))
		return
	}
	fill.PositionID = positionID
	fill.Reason = fmt.Sprintf("tp_rung_%d", rung+1)

	pnl := e.currencyPnL(entry, fill)

	e.mu.Lock()
	pos, ok = e.positions[positionID]
	if !ok {
		e.mu.Unlock()
		return
	}
	pos.TPLadder[rung].Filled = true
	pos.Size -= fill.Size
	pos.RealizedPnL += pnl
	pos.Status = models.StatusPartiallyClosed
	closeOut := e.ladderDone(pos) && pos.MoonbagFraction == 0
	residual := pos.Size
	e.mu.Unlock()

	e.recordFill(ctx, fill)
	e.governor.RecordFill(ctx, pnl, fill.Size)

	if closeOut && residual > 0 {
		e.exitFull(ctx, positionID, price, "ladder_closeout")
	} else if closeOut || residual <= 0 {
		e.finalize(ctx, positionID)
	}
}

// exitFull sells the entire remaining size and closes the position.
func (e *Engine) exitFull(ctx context.Context, positionID string, price float64, reason string) {
	e.mu.Lock()
	pos, ok := e.positions[positionID]
	if !ok || pos.Terminal() || pos.Size <= 0 {
		e.mu.Unlock()
		return
	}
	size, assetID, entry := pos.Size, pos.AssetID, pos.EntryPrice
	e.mu.Unlock()

	fill, err := e.venue.SubmitOrder(ctx, assetID, models.SideSell, size, price)
	if err != nil {
		e.metrics.RecordError("exit_submission")
		e.logger.Error("full exit submission failed",
			xlogger.String("position", positionID),
			xlogger.String("reason", reason),
			xlogger.Error(err))
		return
	}
	fill.PositionID = positionID
	fill.Reason = reason

	pnl := e.currencyPnL(entry, fill)

	e.mu.Lock()
	if pos, ok = e.positions[positionID]; ok {
		pos.Size = 0
		pos.RealizedPnL += pnl
	}
	e.mu.Unlock()

	e.recordFill(ctx, fill)
	e.governor.RecordFill(ctx, pnl, fill.Size)
	e.finalize(ctx, positionID)
}

// finalize marks the position closed, frees its governor slot and journals
// the terminal state.
func (e *Engine) finalize(ctx context.Context, positionID string) {
	e.mu.Lock()
	pos, ok := e.positions[positionID]
	if !ok || pos.Terminal() {
		e.mu.Unlock()
		return
	}
	pos.Status = models.StatusClosed
	pos.ClosedAt = time.Now()
	closed := *pos
	delete(e.positions, positionID)
	e.byAsset[pos.AssetID] = removeID(e.byAsset[pos.AssetID], positionID)
	if len(e.byAsset[pos.AssetID]) == 0 {
		delete(e.byAsset, pos.AssetID)
	}
	e.mu.Unlock()

	e.governor.RecordClose(ctx, 0, closed.Size)
	if e.profits != nil {
		e.profits.Accrue(ctx, closed.RealizedPnL)
	}
	if err := e.journal.StorePosition(ctx, &closed); err != nil {
		e.logger.Warn("closed position journal write failed", xlogger.Error(err))
	}
	if err := e.events.PublishPosition(ctx, &closed); err != nil {
		e.logger.Warn("position event publish failed", xlogger.Error(err))
	}
	e.logger.Info("position closed",
		xlogger.String("position", closed.ID),
		xlogger.String("asset", closed.AssetID),
		xlogger.Float64("realized_pnl", closed.RealizedPnL))
}

// currencyPnL converts a sell fill to realized currency pnl. Fill sizes are
// equity fractions, so the sold stake's entry notional is size*equity and
// its unit count size*equity/entry.
func (e *Engine) currencyPnL(entry float64, f *models.Fill) float64 {
	if entry <= 0 {
		return 0
	}
	return f.Size * e.governor.EquityBase() * (f.Price - entry) / entry
}

func (e *Engine) recordFill(ctx context.Context, f *models.Fill) {
	e.metrics.RecordFill(string(f.Mode), f.Reason)
	if err := e.journal.StoreFill(ctx, f); err != nil {
		e.logger.Warn("fill journal write failed", xlogger.Error(err))
	}
	if err := e.events.PublishFill(ctx, f); err != nil {
		e.logger.Warn("fill event publish failed", xlogger.Error(err))
	}
}

func (e *Engine) ladder() []models.TPRung {
	rungs := make([]models.TPRung, len(e.cfg.TPMultiples))
	for i, m := range e.cfg.TPMultiples {
		rungs[i] = models.TPRung{PriceMultiple: m, SellFraction: e.cfg.TPSellFractions[i]}
	}
	return rungs
}

func (e *Engine) ladderDone(p *models.Position) bool {
	for _, r := range p.TPLadder {
		if !r.Filled {
			return false
		}
	}
	return true
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
