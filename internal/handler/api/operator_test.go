package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"AlphaPilot/internal/allocation"
	"AlphaPilot/internal/domain/models"
	"AlphaPilot/internal/execution"
	"AlphaPilot/internal/fusion"
	"AlphaPilot/internal/repository"
	"AlphaPilot/internal/risk"
	"AlphaPilot/internal/source"
	"AlphaPilot/pkg/cache"
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

type nopJournal struct{}

func (nopJournal) Init(context.Context) error                            { return nil }
func (nopJournal) StoreSignal(context.Context, *models.Signal) error     { return nil }
func (nopJournal) StoreFill(context.Context, *models.Fill) error         { return nil }
func (nopJournal) StorePosition(context.Context, *models.Position) error { return nil }
func (nopJournal) OutcomeBySource(context.Context, time.Time) (map[string]float64, error) {
	return nil, nil
}
func (nopJournal) Health(context.Context) error { return nil }
func (nopJournal) Close() error                 { return nil }

type stubVenue struct{}

func (stubVenue) SubmitOrder(_ context.Context, assetID string, side models.Side, size, price float64) (*models.Fill, error) {
	return &models.Fill{AssetID: assetID, Side: side, Price: price, Size: size, FilledAt: time.Now()}, nil
}

func (stubVenue) LastPrice(context.Context, string) (float64, error) { return 1.0, nil }

type unitWeights struct{}

func (unitWeights) Weight(string) float64 { return 1.0 }

type fixture struct {
	echo        *echo.Echo
	governor    *risk.Governor
	allocations *allocation.Gate
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	logger := xlogger.Nop()
	metrics := nopMetrics{}

	governor := risk.NewGovernor(risk.Config{
		MaxOpenPositions:     5,
		PerPositionCeiling:   0.05,
		PortfolioExposureCap: 0.25,
		DrawdownFraction:     0.3,
		InitialEquity:        1000,
	}, logger, metrics, nil)

	fusionEngine := fusion.NewEngine(fusion.Config{
		Lookback:        time.Hour,
		HighFloor:       0.6,
		MediumFloor:     0.35,
		DefaultHalfLife: 30 * time.Minute,
	}, unitWeights{}, metrics)

	exec := execution.NewEngine(execution.Config{
		Mode:             models.ModePaper,
		TPMultiples:      []float64{2},
		TPSellFractions:  []float64{1},
		StopLossFraction: 0.5,
	}, stubVenue{}, governor, nopJournal{}, repository.NopPublisher{}, nil, logger, metrics)

	allocations := allocation.NewGate(allocation.Config{
		ProfitThreshold:    100,
		AutoApproveCeiling: 500,
		Splits:             []allocation.Split{{Destination: "treasury", Percent: 100}},
	}, cache.NewMemoryCache(), nil, logger)

	h := NewOperatorHandler(source.NewManager(logger), fusionEngine, governor, exec, allocations, token, logger)
	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{echo: e, governor: governor, allocations: allocations}
}

func (f *fixture) request(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestStatusRequiresToken(t *testing.T) {
	f := newFixture(t, "s3cret")

	if rec := f.request(http.MethodGet, "/api/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}
	if rec := f.request(http.MethodGet, "/api/status", "s3cret", ""); rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", rec.Code)
	}
}

func TestStatusReportsRiskState(t *testing.T) {
	f := newFixture(t, "s3cret")

	rec := f.request(http.MethodGet, "/api/status", "s3cret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var envelope struct {
		Data struct {
			Risk models.RiskState `json:"risk"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Risk.EquityHighWaterMark != 1000 {
		t.Fatalf("hwm = %v, want seeded 1000", envelope.Data.Risk.EquityHighWaterMark)
	}
}

func TestApproveAllocationFlow(t *testing.T) {
	f := newFixture(t, "s3cret")

	batch := f.allocations.Accrue(context.Background(), 800)
	if batch == nil || !batch.Pending() {
		t.Fatalf("batch = %+v, want pending", batch)
	}

	rec := f.request(http.MethodPost, "/api/allocations/"+batch.ID+"/approve", "s3cret", `{"operator":"ops"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d (%s), want 200", rec.Code, rec.Body.String())
	}
	if pending := f.allocations.Pending(); len(pending) != 0 {
		t.Fatalf("pending after approve = %d, want 0", len(pending))
	}
}

func TestDenyUnknownAllocation(t *testing.T) {
	f := newFixture(t, "s3cret")

	rec := f.request(http.MethodPost, "/api/allocations/nope/deny", "s3cret", `{"operator":"ops"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deny unknown = %d, want 404", rec.Code)
	}
}

func TestAllocationDecisionRequiresOperator(t *testing.T) {
	f := newFixture(t, "s3cret")

	batch := f.allocations.Accrue(context.Background(), 800)
	rec := f.request(http.MethodPost, "/api/allocations/"+batch.ID+"/approve", "s3cret", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("approve without operator = %d, want 400", rec.Code)
	}
}

func TestKillSwitchResetEndpoint(t *testing.T) {
	f := newFixture(t, "s3cret")

	// not engaged yet
	rec := f.request(http.MethodPost, "/api/killswitch/reset", "s3cret", `{"operator":"ops"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reset while disengaged = %d, want 400", rec.Code)
	}

	f.governor.RecordClose(context.Background(), -400, 0)
	if !f.governor.Snapshot().KillSwitchEngaged {
		t.Fatal("kill switch not engaged by drawdown")
	}

	rec = f.request(http.MethodPost, "/api/killswitch/reset", "s3cret", `{"operator":"ops","reason":"reviewed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset = %d (%s), want 200", rec.Code, rec.Body.String())
	}
	if f.governor.Snapshot().KillSwitchEngaged {
		t.Fatal("kill switch still engaged after reset")
	}
}
