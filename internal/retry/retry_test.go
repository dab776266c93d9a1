package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout", errors.New("connection timeout"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429", errors.New("HTTP 429 Too Many Requests"), true},
		{"503", errors.New("503 Service Unavailable"), true},
		{"connection refused", errors.New("connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"not found", errors.New("resource not found"), false},
		{"invalid input", errors.New("invalid parameter"), false},
		{"auth error", errors.New("unauthorized"), false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled with timeout text", fmt.Errorf("timeout: %w", context.Canceled), false},
		{"pg connection exception", &pq.Error{Code: "08006"}, true},
		{"pg deadlock", fmt.Errorf("save: %w", &pq.Error{Code: "40P01"}), true},
		{"pg too many connections", &pq.Error{Code: "53300"}, true},
		{"pg unique violation", &pq.Error{Code: "23505"}, false},
		{"pg syntax error", &pq.Error{Code: "42601"}, false},
		{"pool exhausted", errors.New("connection pool exhausted: too many clients"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestDo(t *testing.T) {
	fast := Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	busy := &pq.Error{Code: "53300"}
	invalid := errors.New("invalid constraint system")

	tests := []struct {
		name     string
		failures int
		err      error
		wantErr  error
		attempts int
	}{
		{"success", 0, nil, nil, 1},
		{"recovers after retries", 2, busy, nil, 3},
		{"non-retryable", 3, invalid, invalid, 1},
		{"gives up after max attempts", 3, busy, busy, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fast, func() error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Do returned %v, want %v", err, tt.wantErr)
			}
			if attempts != tt.attempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.attempts)
			}
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Do(ctx, cfg, func() error {
		return errors.New("connection timeout")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline exceeded, got %v", err)
	}
}

func TestDoWithResult_Success(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
	}

	result, err := DoWithResult(context.Background(), cfg, func() (int, error) {
		return 42, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
}

func TestDoWithResult_RetryThenSuccess(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
	}

	attempts := 0
	result, err := DoWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestCircuitBreaker_AllowsWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	if !cb.Allow() {
		t.Error("circuit breaker should allow requests when closed")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.IsOpen() {
		t.Error("circuit should still be closed after 2 failures")
	}

	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Error("circuit should be open after 3 failures")
	}

	if cb.Allow() {
		t.Error("circuit breaker should not allow requests when open")
	}
}

func TestCircuitBreaker_ResetsOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.IsOpen() {
		t.Error("circuit should be closed after success")
	}

	// Should need 3 more failures to open again
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.IsOpen() {
		t.Error("circuit should still be closed after 2 failures")
	}
}

func TestCircuitBreaker_ResetsAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()

	if !cb.IsOpen() {
		t.Error("circuit should be open")
	}

	// Wait for reset timeout
	time.Sleep(60 * time.Millisecond)

	if !cb.Allow() {
		t.Error("circuit should allow after reset timeout")
	}

	if cb.IsOpen() {
		t.Error("circuit should be closed after allowing a request")
	}
}

func TestDo_OnRetry(t *testing.T) {
	var seen []int
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		OnRetry:     func(attempt int, err error) { seen = append(seen, attempt) },
	}

	err := Do(context.Background(), cfg, func() error {
		return errors.New("busy")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// No callback after the final attempt
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", seen)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}
	for attempt := 0; attempt < 6; attempt++ {
		d := cfg.backoff(attempt)
		if d > 50*time.Millisecond {
			t.Errorf("backoff(%d) = %s exceeds cap plus jitter", attempt, d)
		}
	}
	zero := Config{}
	if d := zero.backoff(3); d != 0 {
		t.Errorf("zero config backoff = %s", d)
	}
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	fail := errors.New("send failed")

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return fail }); err != fail {
			t.Errorf("Execute returned %v, want %v", err, fail)
		}
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while the circuit is open")
	}
}
