package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoffSchedule(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
		Jitter:          false,
		MaxRetries:      5,
	}
	backoff := ExponentialBackoff(cfg)

	expected := []time.Duration{
		100 * time.Millisecond, // attempt 1
		200 * time.Millisecond, // attempt 2
		400 * time.Millisecond, // attempt 3
		800 * time.Millisecond, // attempt 4
		1 * time.Second,        // attempt 5, capped
		1 * time.Second,        // attempt 6, capped
	}
	for i, want := range expected {
		if got := backoff(i + 1); got != want {
			t.Errorf("Expected attempt %d delay %v, got %v", i+1, want, got)
		}
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		MaxRetries:      3,
	}
	backoff := ExponentialBackoff(cfg)

	// Jittered delay must stay within [base/2, base).
	for i := 0; i < 50; i++ {
		d := backoff(2) // base 200ms
		if d < 100*time.Millisecond || d >= 200*time.Millisecond {
			t.Fatalf("Jittered delay %v outside [100ms, 200ms)", d)
		}
	}
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		MaxRetries:      3,
	}

	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, cfg)

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
		MaxRetries:      2,
	}

	calls := 0
	sentinel := errors.New("still broken")
	err := WithRetry(context.Background(), func() error {
		calls++
		return sentinel
	}, cfg)

	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped original error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected MaxRetries+1 = 3 calls, got %d", calls)
	}
}

func TestWithRetryContextCancellation(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Hour, // would block without cancellation
		MaxInterval:     time.Hour,
		Multiplier:      2.0,
		MaxRetries:      3,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := WithRetry(ctx, func() error {
		return errors.New("transient")
	}, cfg)

	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Cancellation took too long, retry sleep not context-aware")
	}
}

func TestWithRetryExceptStop(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
		MaxRetries:      5,
	}

	calls := 0
	permanent := errors.New("unique constraint violated")
	err := WithRetryExceptStop(context.Background(), func() error {
		calls++
		return Stop(permanent)
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected exactly 1 call for a stop error, got %d", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("Expected original error back, got %v", err)
	}
	if IsStopError(err) {
		t.Error("Expected unwrapped error, got StopError")
	}
}

func TestIsStopError(t *testing.T) {
	if !IsStopError(Stop(errors.New("x"))) {
		t.Error("Expected IsStopError true for wrapped error")
	}
	if IsStopError(errors.New("x")) {
		t.Error("Expected IsStopError false for plain error")
	}
}
