package retry

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerSettings{FailureThreshold: threshold, Cooldown: cooldown}, noopLogger(), clock.Now)
	return b, clock
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.Failure()
		if err := b.Allow(); err != nil {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	b.Failure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if err := b.Allow(); err != nil {
		t.Fatalf("success must reset the consecutive failure count: %v", err)
	}
}

func TestBreakerHalfOpenTrialSucceeds(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.Failure()
	b.Failure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatal("circuit should be open")
	}

	clock.Advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("cooldown elapsed, a trial call must pass: %v", err)
	}

	b.Success()
	if err := b.Allow(); err != nil {
		t.Fatalf("successful trial must close the circuit: %v", err)
	}
	if state := b.Snapshot(); state.Open || state.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected state after recovery: %+v", state)
	}
}

func TestBreakerHalfOpenTrialFails(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.Failure()
	b.Failure()
	clock.Advance(time.Minute)

	if err := b.Allow(); err != nil {
		t.Fatalf("trial call should pass: %v", err)
	}
	b.Failure()

	// The failing trial restarts the cooldown window.
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatal("failed trial must re-open the circuit")
	}
	clock.Advance(30 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatal("cooldown restarted; half the window is not enough")
	}
	clock.Advance(30 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("full cooldown elapsed again, trial must pass: %v", err)
	}
}

func TestBreakerDo(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	boom := errors.New("boom")
	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected the op error, got %v", err)
	}

	calls := 0
	err := b.Do(func() error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatal("open circuit must not invoke the operation")
	}
}
