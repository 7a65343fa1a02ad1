package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// newTestExecutor swaps the real sleep for one that only records delays.
func newTestExecutor(policy Policy, delays *[]time.Duration) *Executor {
	exec := NewExecutor(policy, noopLogger())
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
	return exec
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient wrapper", &Transient{Err: errors.New("anything")}, true},
		{"http 429", &HTTPError{Status: 429}, true},
		{"http 503", &HTTPError{Status: 503}, true},
		{"http 404", &HTTPError{Status: 404}, false},
		{"http 400", &HTTPError{Status: 400}, false},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"timeout token", errors.New("request timeout exceeded"), true},
		{"connection token", errors.New("connection refused"), true},
		{"unavailable token", errors.New("service temporarily unavailable"), true},
		{"parse failure", errors.New("invalid character 'x' in JSON"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestExecutorFirstAttemptSuccess(t *testing.T) {
	exec := newTestExecutor(DefaultPolicy(), nil)

	calls := 0
	err := exec.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestExecutorRetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	exec := newTestExecutor(Policy{MaxRetries: 3, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 30 * time.Second}, &delays)

	calls := 0
	err := exec.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{Status: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays: %v", delays)
	}
}

func TestExecutorStopsOnNonRetryable(t *testing.T) {
	exec := newTestExecutor(DefaultPolicy(), nil)

	permanent := &HTTPError{Status: 404}
	calls := 0
	err := exec.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d calls", calls)
	}
}

func TestExecutorExhaustsBudget(t *testing.T) {
	var delays []time.Duration
	exec := newTestExecutor(Policy{MaxRetries: 3, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 30 * time.Second}, &delays)

	calls := 0
	transient := &HTTPError{Status: 500}
	err := exec.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected the last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected initial call plus 3 retries, got %d", calls)
	}
	if len(delays) != 3 {
		t.Fatalf("expected 3 backoff waits, got %v", delays)
	}
}

func TestExecutorDelayCappedAtMax(t *testing.T) {
	var delays []time.Duration
	exec := newTestExecutor(Policy{MaxRetries: 6, InitialDelay: 10 * time.Second, BackoffMultiplier: 2, MaxDelay: 30 * time.Second}, &delays)

	_ = exec.Do(context.Background(), "op", func(ctx context.Context) error {
		return &HTTPError{Status: 502}
	})

	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %s, got %s", i, want[i], delays[i])
		}
	}
}

func TestExecutorCancelledDuringBackoff(t *testing.T) {
	exec := NewExecutor(Policy{MaxRetries: 3, InitialDelay: time.Second}, noopLogger())
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	transient := &HTTPError{Status: 503}
	calls := 0
	err := exec.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected the last operation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancellation during backoff must stop retries, got %d calls", calls)
	}
}
