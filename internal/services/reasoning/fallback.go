package reasoning

import (
	"context"
	"fmt"

	domsvc "AlphaPilot/internal/domain/service"
	xlogger "AlphaPilot/pkg/logger"
)

// Fallback chains a primary provider with a named secondary. The secondary
// is tried automatically on any primary timeout or error; when both fail
// the combined error surfaces to the deliberation engine, which maps it to
// Defer.
type Fallback struct {
	primary   domsvc.ReasoningProvider
	secondary domsvc.ReasoningProvider
	logger    *xlogger.Logger
}

// NewFallback builds the provider chain. secondary may be nil.
func NewFallback(primary, secondary domsvc.ReasoningProvider, logger *xlogger.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Name reports the chain for logs.
func (f *Fallback) Name() string {
	if f.secondary == nil {
		return f.primary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

// Deliberate tries the primary, then the secondary.
func (f *Fallback) Deliberate(ctx context.Context, req domsvc.RoleRequest) (*domsvc.RoleReply, error) {
	reply, perr := f.primary.Deliberate(ctx, req)
	if perr == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		// the whole cycle is cancelled; the fallback would fail the same way
		return nil, perr
	}
	if f.secondary == nil {
		return nil, perr
	}

	f.logger.Warn("primary reasoning provider failed, using fallback",
		xlogger.String("primary", f.primary.Name()),
		xlogger.String("fallback", f.secondary.Name()),
		xlogger.Error(perr))

	reply, serr := f.secondary.Deliberate(ctx, req)
	if serr != nil {
		return nil, fmt.Errorf("primary: %v; fallback: %w", perr, serr)
	}
	return reply, nil
}
