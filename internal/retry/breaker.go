package retry

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting the wrapped operation.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerSettings tune the circuit breaker.
type BreakerSettings struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// DefaultBreakerSettings returns the standard breaker parameters.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, Cooldown: 60 * time.Second}
}

// Breaker tracks consecutive failures for one logical caller and
// short-circuits calls once the threshold is reached. After the cooldown a
// single trial call is allowed through; its outcome decides whether the
// circuit closes again or re-opens.
type Breaker struct {
	settings BreakerSettings
	logger   zerolog.Logger
	now      func() time.Time

	mu                  sync.Mutex
	open                bool
	openedAt            time.Time
	consecutiveFailures int
}

// NewBreaker constructs a breaker. The clock is injectable for tests; pass
// nil to use time.Now.
func NewBreaker(settings BreakerSettings, logger zerolog.Logger, now func() time.Time) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 60 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		settings: settings,
		logger:   logger.With().Str("component", "breaker").Logger(),
		now:      now,
	}
}

// Allow reports whether a call may proceed. An open circuit whose cooldown
// has elapsed lets one trial call through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		// Half-open: permit a trial call. The circuit stays formally open
		// until Success closes it; another failure pushes openedAt forward.
		return nil
	}
	return ErrCircuitOpen
}

// Success records a successful call, closing the circuit if it was open.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.open {
		b.open = false
		b.openedAt = time.Time{}
		b.logger.Info().Msg("circuit closed, upstream recovered")
	}
}

// Failure records a failed call and opens the circuit once the threshold of
// consecutive failures is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.consecutiveFailures < b.settings.FailureThreshold {
		return
	}
	if b.open {
		// Failing trial call after cooldown: restart the cooldown window.
		b.openedAt = b.now()
		return
	}
	b.open = true
	b.openedAt = b.now()
	b.logger.Warn().
		Int("consecutive_failures", b.consecutiveFailures).
		Dur("cooldown", b.settings.Cooldown).
		Msg("circuit opened")
}

// Do wraps op with the breaker: rejected calls return ErrCircuitOpen without
// invoking op, and op's outcome feeds the failure counter.
func (b *Breaker) Do(op func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := op(); err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}

// State is a snapshot of the breaker, for logging and inspection.
type State struct {
	Open                bool
	OpenedAt            time.Time
	ConsecutiveFailures int
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{Open: b.open, OpenedAt: b.openedAt, ConsecutiveFailures: b.consecutiveFailures}
}
