package models

import "time"

// RiskState is the system's only shared mutable state. All access is
// serialized by the risk governor; nothing else holds a copy.
type RiskState struct {
	EquityHighWaterMark float64
	RealizedPnLToday    float64
	OpenPositionCount   int
	ReservedExposure    float64 // equity fraction reserved by open + in-flight positions
	KillSwitchEngaged   bool
	KillSwitchReason    string
	UpdatedAt           time.Time
}

// AdmitVerdict is the result of presenting a proposal to the risk governor.
type AdmitVerdict string

const (
	AdmitApproved AdmitVerdict = "approved"
	AdmitDenied   AdmitVerdict = "denied"
	AdmitDeferred AdmitVerdict = "deferred"
)

// AdmitDecision carries the verdict plus the (possibly resized) approved
// size and, on denial, the reason.
type AdmitDecision struct {
	Verdict      AdmitVerdict
	ApprovedSize float64
	Reason       string
}
