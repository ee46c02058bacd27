package models

import "time"

// Direction is the directional opinion carried by a Signal.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Signal is one normalized observation from an external alpha source.
// Signals are immutable: a newer observation supersedes an older one,
// nothing ever mutates a Signal in place.
type Signal struct {
	SourceID      string
	AssetID       string
	Direction     Direction
	Strength      float64 // [0,1]
	ObservedAt    time.Time
	DecayHalfLife time.Duration
	Tags          []string
}

// Signed returns strength with the direction's sign applied.
func (s *Signal) Signed() float64 {
	switch s.Direction {
	case DirectionBullish:
		return s.Strength
	case DirectionBearish:
		return -s.Strength
	default:
		return 0
	}
}

// IsLiquidityPull reports whether the signal carries a liquidity-removal tag.
// Such signals invalidate any cached validation verdict for the asset early.
func (s *Signal) IsLiquidityPull() bool {
	for _, t := range s.Tags {
		if t == TagLiquidityRemoval {
			return true
		}
	}
	return false
}

// TagLiquidityRemoval marks a signal reporting liquidity being pulled.
const TagLiquidityRemoval = "liquidity_removal"

// CircuitState is the state of a per-source circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Reliability weight bounds. Adaptation never moves a weight outside them.
const (
	MinReliabilityWeight = 0.1
	MaxReliabilityWeight = 3.0
)

// SourceState is the per-source bookkeeping record. It is written only by
// the owning adapter and by the slow weight-adaptation job.
type SourceState struct {
	SourceID            string
	ReliabilityWeight   float64 // [MinReliabilityWeight, MaxReliabilityWeight]
	Circuit             CircuitState
	ConsecutiveFailures int
	CooldownUntil       time.Time
}

// ClampWeight bounds w to the allowed reliability range.
func ClampWeight(w float64) float64 {
	if w < MinReliabilityWeight {
		return MinReliabilityWeight
	}
	if w > MaxReliabilityWeight {
		return MaxReliabilityWeight
	}
	return w
}
