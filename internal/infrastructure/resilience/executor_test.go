package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
		BreakerEnabled: false,
	}
}

func retryAlways(error) Verdict { return Verdict{Retry: true, CountAsFailure: true} }
func neverRetry(error) Verdict  { return Verdict{Retry: false, CountAsFailure: true} }

func TestRunRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	calls := 0
	err := exec.Run(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient %d", calls)
		}
		return nil
	}, retryAlways)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunStopsAtMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	calls := 0
	err := exec.Run(context.Background(), "op", func(context.Context) error {
		calls++
		return fmt.Errorf("always failing")
	}, retryAlways)
	if err == nil {
		t.Fatalf("expected the final failure to surface")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	calls := 0
	err := exec.Run(context.Background(), "op", func(context.Context) error {
		calls++
		return fmt.Errorf("permanent")
	}, neverRetry)
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := exec.Run(ctx, "op", func(context.Context) error {
		calls++
		return nil
	}, retryAlways)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if calls != 0 {
		t.Fatalf("callback must not run after cancellation")
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 1
	policy.BreakerEnabled = true
	policy.BreakerMinRequests = 3
	policy.BreakerFailureRatio = 0.5
	policy.BreakerCooldown = time.Minute
	exec := NewExecutor(policy)

	for i := 0; i < 3; i++ {
		_ = exec.Run(context.Background(), "flaky", func(context.Context) error {
			return fmt.Errorf("down")
		}, retryAlways)
	}

	err := exec.Run(context.Background(), "flaky", func(context.Context) error {
		t.Fatalf("callback must not run while the breaker is open")
		return nil
	}, retryAlways)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected an open-circuit error, got %v", err)
	}
}

func TestBreakersAreIsolatedPerOperation(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 1
	policy.BreakerEnabled = true
	policy.BreakerMinRequests = 2
	exec := NewExecutor(policy)

	for i := 0; i < 2; i++ {
		_ = exec.Run(context.Background(), "broken", func(context.Context) error {
			return fmt.Errorf("down")
		}, retryAlways)
	}

	err := exec.Run(context.Background(), "healthy", func(context.Context) error {
		return nil
	}, retryAlways)
	if err != nil {
		t.Fatalf("unrelated operation must stay closed, got %v", err)
	}
}
