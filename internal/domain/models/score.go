package models

import "time"

// ConfidenceTier classifies an AlphaScore by magnitude and source diversity.
type ConfidenceTier string

const (
	TierLow    ConfidenceTier = "low"
	TierMedium ConfidenceTier = "medium"
	TierHigh   ConfidenceTier = "high"
)

// AlphaScore is the fused, decayed, weight-adjusted composite for one asset.
// It is derived state: always recomputed from the live signal set, never
// mutated.
type AlphaScore struct {
	AssetID             string
	CompositeStrength   float64 // [-1,1]
	ContributingSources []string
	Tier                ConfidenceTier
	ComputedAt          time.Time
}

// Actionable reports whether the score is strong enough to deliberate on.
func (s *AlphaScore) Actionable() bool {
	return s.Tier == TierMedium || s.Tier == TierHigh
}

// ValidationVerdict is the result of the safety check battery for one asset.
// FailedChecks names every check that failed, so a block can be explained
// downstream instead of surfacing as a bare boolean.
type ValidationVerdict struct {
	AssetID      string
	Passed       bool
	FailedChecks []string
	CheckedAt    time.Time
	TTL          time.Duration
}

// Expired reports whether the verdict is past its TTL at the given time.
func (v *ValidationVerdict) Expired(now time.Time) bool {
	return now.After(v.CheckedAt.Add(v.TTL))
}
