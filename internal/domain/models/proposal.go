package models

import "time"

// Side is the direction of an order. Proposals always enter with a buy;
// sells only occur as position exits.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Consensus is the outcome of a deliberation cycle.
type Consensus string

const (
	ConsensusApprove Consensus = "approve"
	ConsensusReject  Consensus = "reject"
	ConsensusDefer   Consensus = "defer"
)

// Role identifies one of the deliberation passes.
type Role string

const (
	RoleAnalyst     Role = "analyst"
	RoleRiskManager Role = "risk_manager"
	RoleContrarian  Role = "contrarian"
	RoleCoordinator Role = "coordinator"
)

// Roles in deliberation order. The order is part of the contract: each
// pass sees the output of every earlier one.
var DeliberationOrder = []Role{RoleAnalyst, RoleRiskManager, RoleContrarian, RoleCoordinator}

// TradeProposal is the bounded output of one deliberation cycle.
// Created once per cycle, consumed by the risk governor, never mutated.
type TradeProposal struct {
	AssetID               string
	Side                  Side
	RequestedSizeFraction float64 // fraction of equity, already hard-capped
	RationaleByRole       map[Role]string
	Consensus             Consensus
	CreatedAt             time.Time
}
