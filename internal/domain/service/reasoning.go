package service

import (
	"context"

	"AlphaPilot/internal/domain/models"
)

// RoleRequest is the payload for one deliberation pass.
type RoleRequest struct {
	Role         models.Role
	Score        models.AlphaScore
	Verdict      models.ValidationVerdict
	PriorOutputs map[models.Role]RoleReply
	MaxSize      float64 // hard cap the model is told about and held to in code
}

// RoleReply is the typed result of one pass.
type RoleReply struct {
	Rationale    string
	ProposedSize float64 // 0 when the role has no sizing opinion
	Verdict      models.Consensus
}

// ReasoningProvider is a single external reasoning backend. Calls carry a
// hard deadline via ctx; cancellation surfaces as an error to the caller.
type ReasoningProvider interface {
	Name() string
	Deliberate(ctx context.Context, req RoleRequest) (*RoleReply, error)
}
