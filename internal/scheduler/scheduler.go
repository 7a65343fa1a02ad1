package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CycleFunc is invoked at every scheduled refresh cycle.
type CycleFunc func(ctx context.Context, cycle time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives periodic execution of refresh cycles in watch mode.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the cycle function once per interval until ctx is
// cancelled. The first cycle fires a full interval after the optional
// startup delay. Cycles never overlap: the timer is rearmed only after
// the cycle function returns.
func (s *Scheduler) Run(ctx context.Context, run CycleFunc) error {
	if s.opts.StartupDelay > 0 {
		delay := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			return ctx.Err()
		case <-delay.C:
		}
	}

	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		s.logger.Debug().Dur("interval", s.opts.Interval).Msg("waiting for next refresh cycle")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cycle := <-timer.C:
			s.logger.Info().Time("cycle", cycle).Msg("executing scheduled refresh")
			if err := run(ctx, cycle); err != nil {
				s.logger.Error().Err(err).Time("cycle", cycle).Msg("refresh cycle failed")
			}
			timer.Reset(s.opts.Interval)
		}
	}
}
