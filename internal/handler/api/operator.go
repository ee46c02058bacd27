package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"AlphaPilot/internal/allocation"
	"AlphaPilot/internal/domain/models"
	"AlphaPilot/internal/execution"
	"AlphaPilot/internal/fusion"
	"AlphaPilot/internal/middleware"
	"AlphaPilot/internal/risk"
	"AlphaPilot/internal/source"
	xhttp "AlphaPilot/pkg/http"
	xlogger "AlphaPilot/pkg/logger"
)

// OperatorHandler exposes the operator surface: system status, allocation
// approvals and the kill-switch reset. Everything behind it is a read or an
// explicit operator action; the trading loop itself has no HTTP surface.
type OperatorHandler struct {
	sources     *source.Manager
	fusion      *fusion.Engine
	governor    *risk.Governor
	exec        *execution.Engine
	allocations *allocation.Gate
	token       string
	logger      *xlogger.Logger
}

func NewOperatorHandler(sources *source.Manager, fusionEngine *fusion.Engine, governor *risk.Governor, exec *execution.Engine, allocations *allocation.Gate, token string, logger *xlogger.Logger) *OperatorHandler {
	return &OperatorHandler{
		sources:     sources,
		fusion:      fusionEngine,
		governor:    governor,
		exec:        exec,
		allocations: allocations,
		token:       token,
		logger:      logger,
	}
}

// RegisterRoutes registers operator routes.
func (h *OperatorHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", middleware.BearerAuth(h.token))
	g.GET("/status", h.Status)
	g.POST("/allocations/:id/approve", h.ApproveAllocation)
	g.POST("/allocations/:id/deny", h.DenyAllocation)
	g.POST("/killswitch/reset", h.ResetKillSwitch)
}

type statusResponse struct {
	Risk        models.RiskState         `json:"risk"`
	Sources     []models.SourceState     `json:"sources"`
	Scores      []models.AlphaScore      `json:"scores"`
	Positions   []models.Position        `json:"positions"`
	Allocations []models.AllocationBatch `json:"pending_allocations"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// Status returns a full operational snapshot.
func (h *OperatorHandler) Status(c echo.Context) error {
	assets := h.fusion.Assets()
	scores := make([]models.AlphaScore, 0, len(assets))
	for _, a := range assets {
		if s, ok := h.fusion.Score(a); ok {
			scores = append(scores, s)
		}
	}

	return xhttp.SuccessResponse(c, statusResponse{
		Risk:        h.governor.Snapshot(),
		Sources:     h.sources.States(),
		Scores:      scores,
		Positions:   h.exec.OpenPositions(),
		Allocations: h.allocations.Pending(),
		GeneratedAt: time.Now(),
	})
}

type allocationDecisionRequest struct {
	Operator string `json:"operator" validate:"required,min=2,max=64"`
}

// ApproveAllocation approves a pending allocation batch.
func (h *OperatorHandler) ApproveAllocation(c echo.Context) error {
	return h.decideAllocation(c, true)
}

// DenyAllocation denies a pending allocation batch; its amount returns to
// the profit accumulator.
func (h *OperatorHandler) DenyAllocation(c echo.Context) error {
	return h.decideAllocation(c, false)
}

func (h *OperatorHandler) decideAllocation(c echo.Context, approve bool) error {
	batchID := c.Param("id")
	if batchID == "" {
		return xhttp.BadRequestResponse(c, "batch id is required")
	}

	req := new(allocationDecisionRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	var (
		batch *models.AllocationBatch
		err   error
	)
	if approve {
		batch, err = h.allocations.Approve(c.Request().Context(), batchID, req.Operator)
	} else {
		batch, err = h.allocations.Deny(c.Request().Context(), batchID, req.Operator)
	}
	switch {
	case errors.Is(err, allocation.ErrUnknownBatch):
		return xhttp.NotFoundResponse(c, "unknown allocation batch")
	case errors.Is(err, allocation.ErrAlreadyResolved):
		return xhttp.BadRequestResponse(c, "batch already resolved")
	case err != nil:
		h.logger.Error("allocation decision failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}

	return xhttp.SuccessResponse(c, batch)
}

type killSwitchResetRequest struct {
	Operator string `json:"operator" validate:"required,min=2,max=64"`
	Reason   string `json:"reason" validate:"max=256"`
}

// ResetKillSwitch clears an engaged kill switch after operator review.
func (h *OperatorHandler) ResetKillSwitch(c echo.Context) error {
	req := new(killSwitchResetRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	if !h.governor.ResetKillSwitch(req.Operator) {
		return xhttp.BadRequestResponse(c, "kill switch is not engaged")
	}

	h.logger.Warn("kill switch reset by operator",
		xlogger.String("operator", req.Operator),
		xlogger.String("reason", req.Reason))
	return xhttp.SuccessResponse(c, h.governor.Snapshot())
}
