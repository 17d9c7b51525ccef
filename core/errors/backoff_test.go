package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyDelayGrows(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	d0 := policy.Delay(0)
	d2 := policy.Delay(2)

	if d0 != 100*time.Millisecond {
		t.Errorf("Delay(0): got %v, want 100ms", d0)
	}
	if d2 != 400*time.Millisecond {
		t.Errorf("Delay(2): got %v, want 400ms", d2)
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10.0,
	}

	if d := policy.Delay(5); d != 2*time.Second {
		t.Errorf("Delay(5): got %v, want cap 2s", d)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond}

	sentinel := errors.New("permanent")
	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		return sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Errorf("Retry: got %v, want %v", err, sentinel)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, policy, func(ctx context.Context) error {
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry: got %v, want context.Canceled", err)
	}
}
