package source

import (
	"sync"
	"time"

	"AlphaPilot/internal/domain/models"
)

// BreakerConfig bounds a per-source circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // failures within Window that open the circuit
	Window           time.Duration // rolling failure window
	Cooldown         time.Duration // initial open cooldown
	MaxCooldown      time.Duration // exponential backoff cap
}

// Breaker is a per-source circuit breaker. Closed admits calls freely;
// crossing the failure threshold inside the rolling window opens it, after
// which no call is admitted until the cooldown expires. The first call
// after cooldown is a single half-open probe: success closes the circuit,
// failure reopens it with doubled cooldown, capped at MaxCooldown.
type Breaker struct {
	sourceID string
	cfg      BreakerConfig

	mu            sync.Mutex
	state         models.CircuitState
	failures      []time.Time
	consecutive   int
	cooldownUntil time.Time
	curCooldown   time.Duration
	probing       bool

	now          func() time.Time
	onTransition func(sourceID string, from, to models.CircuitState)
}

// NewBreaker creates a closed breaker for one source.
func NewBreaker(sourceID string, cfg BreakerConfig, onTransition func(string, models.CircuitState, models.CircuitState)) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = 10 * cfg.Cooldown
	}
	return &Breaker{
		sourceID:     sourceID,
		cfg:          cfg,
		state:        models.CircuitClosed,
		curCooldown:  cfg.Cooldown,
		now:          time.Now,
		onTransition: onTransition,
	}
}

// Allow reports whether an external call may proceed right now. While the
// circuit is open it returns false until the cooldown has expired, then
// admits exactly one half-open probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.CircuitClosed:
		return true
	case models.CircuitOpen:
		if b.now().Before(b.cooldownUntil) {
			return false
		}
		b.transition(models.CircuitHalfOpen)
		b.probing = true
		return true
	case models.CircuitHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Success records a successful call. A half-open probe success closes the
// circuit and resets the backoff.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	switch b.state {
	case models.CircuitHalfOpen:
		b.probing = false
		b.failures = b.failures[:0]
		b.curCooldown = b.cfg.Cooldown
		b.transition(models.CircuitClosed)
	case models.CircuitClosed:
		// steady state
	}
}

// Failure records a failed call and opens the circuit once the threshold
// is crossed inside the rolling window.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.consecutive++

	switch b.state {
	case models.CircuitHalfOpen:
		// probe failed: reopen with doubled cooldown
		b.probing = false
		b.curCooldown *= 2
		if b.curCooldown > b.cfg.MaxCooldown {
			b.curCooldown = b.cfg.MaxCooldown
		}
		b.cooldownUntil = now.Add(b.curCooldown)
		b.transition(models.CircuitOpen)
	case models.CircuitClosed:
		b.failures = append(b.failures, now)
		b.prune(now)
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.cooldownUntil = now.Add(b.curCooldown)
			b.transition(models.CircuitOpen)
		}
	}
}

// State returns the current circuit state.
func (b *Breaker) State() models.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot reports breaker fields for the owning SourceState record.
func (b *Breaker) Snapshot() (models.CircuitState, int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.consecutive, b.cooldownUntil
}

// CooldownUntil returns when the next call may be attempted.
func (b *Breaker) CooldownUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldownUntil
}

func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) transition(to models.CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onTransition != nil {
		b.onTransition(b.sourceID, from, to)
	}
}
