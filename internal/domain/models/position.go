package models

import "time"

// ExecutionMode selects paper or live execution. The two run through the
// identical validation and sizing path so the paper track record predicts
// live behavior.
type ExecutionMode string

const (
	ModePaper ExecutionMode = "paper"
	ModeLive  ExecutionMode = "live"
)

// PositionStatus is the lifecycle state of a Position. A position only
// exists once its entry filled; proposals that never fill are released
// back to the governor instead of becoming positions. Closed is terminal.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "open"
	StatusPartiallyClosed PositionStatus = "partially_closed"
	StatusClosed          PositionStatus = "closed"
)

// TPRung is one rung of a take-profit ladder: sell SellFraction of the
// original size once price reaches PriceMultiple × entry.
type TPRung struct {
	PriceMultiple float64
	SellFraction  float64
	Filled        bool
}

// Position is an owned exposure driven by price updates and its TP/SL ladder.
type Position struct {
	ID               string
	AssetID          string
	Mode             ExecutionMode
	EntryPrice       float64
	Size             float64 // equity fraction remaining open
	InitialSize      float64
	TPLadder         []TPRung
	StopLossFraction float64 // loss fraction of entry forcing full exit
	MoonbagFraction  float64 // residual left open past the last rung; 0 disables
	Status           PositionStatus
	OpenedAt         time.Time
	ClosedAt         time.Time
	RealizedPnL      float64
}

// Terminal reports whether the position reached a final state.
func (p *Position) Terminal() bool {
	return p.Status == StatusClosed
}

// Fill is one executed (or simulated) slice of a position.
type Fill struct {
	PositionID string
	AssetID    string
	Side       Side
	Price      float64
	Size       float64
	Mode       ExecutionMode
	Reason     string // "entry", "tp_rung_N", "stop_loss", "ladder_closeout"
	FilledAt   time.Time
}
