package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Policy tunes the exponential backoff loop.
type Policy struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
}

// DefaultPolicy returns the standard backoff parameters.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 2.0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// HTTPError carries an upstream HTTP status so the executor can classify it.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Transient marks an error as retryable regardless of its message.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return e.Err.Error() }
func (e *Transient) Unwrap() error { return e.Err }

var retryableStatuses = map[int]struct{}{
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

var retryableTokens = []string{
	"timeout",
	"connection",
	"network",
	"unavailable",
	"temporarily",
	"service error",
}

// Retryable reports whether an error is worth another attempt.
// Network/timeout errors, a known set of HTTP statuses, and errors whose
// message carries a transient-looking token qualify. Parse and validation
// failures do not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var transient *Transient
	if errors.As(err, &transient) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		_, ok := retryableStatuses[httpErr.Status]
		return ok
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, token := range retryableTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// Executor runs operations with bounded exponential backoff.
type Executor struct {
	policy Policy
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor constructs an executor with the given policy.
func NewExecutor(policy Policy, logger zerolog.Logger) *Executor {
	return &Executor{
		policy: policy.normalized(),
		logger: logger.With().Str("component", "retry").Logger(),
		sleep:  sleepCtx,
	}
}

// Do invokes op, retrying retryable failures with exponential backoff until
// the attempt budget is exhausted. The final error is returned unwrapped so
// callers can inspect it. Cancellation interrupts the backoff wait.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	delay := e.policy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info().Str("op", name).Int("attempt", attempt+1).Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			e.logger.Debug().Str("op", name).Err(err).Msg("error not retryable")
			return err
		}
		if attempt >= e.policy.MaxRetries {
			e.logger.Error().Str("op", name).Int("attempts", attempt+1).Err(err).Msg("exhausted retries")
			return err
		}

		e.logger.Warn().Str("op", name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("retrying after transient failure")

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return lastErr
		}

		next := time.Duration(float64(delay) * e.policy.BackoffMultiplier)
		if next > e.policy.MaxDelay {
			next = e.policy.MaxDelay
		}
		delay = next
	}

	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
