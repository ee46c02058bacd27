package models

import (
	"errors"
	"fmt"
	"strings"
)

// TransientSourceError is an adapter-level failure that feeds the circuit
// breaker. It never escapes the owning adapter.
type TransientSourceError struct {
	SourceID string
	Err      error
}

func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// ValidationFailure reports named failed checks. It is not retriable while
// the cached verdict lives.
type ValidationFailure struct {
	AssetID string
	Checks  []string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("asset %s failed checks: %s", e.AssetID, strings.Join(e.Checks, ","))
}

// ErrDeliberationTimeout marks a reasoning cycle that exceeded its deadline
// or exhausted all providers. The caller maps it to Defer, never to Approve.
var ErrDeliberationTimeout = errors.New("deliberation timed out")

// RiskDenied is terminal for the cycle: the proposal is discarded and only
// retried on a fresh AlphaScore.
type RiskDenied struct {
	AssetID string
	Reason  string
}

func (e *RiskDenied) Error() string {
	return fmt.Sprintf("risk denied %s: %s", e.AssetID, e.Reason)
}

// ExecutionFailure is a failed venue submission. The reserved risk budget
// must be released back through the governor so it does not permanently
// consume headroom.
type ExecutionFailure struct {
	PositionID string
	Err        error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution %s: %v", e.PositionID, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }
