package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry, if set, is called before sleeping after a failed attempt
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Postgres error classes worth another attempt
var retryableClasses = map[pq.ErrorClass]bool{
	"08": true, // connection exception
	"40": true, // transaction rollback (serialization, deadlock)
	"53": true, // insufficient resources
	"57": true, // operator intervention (query canceled, shutdown)
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableClasses[pqErr.Code.Class()]
	}

	errStr := strings.ToLower(err.Error())

	// Retryable errors
	retryablePatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"connection failed",
		"pool exhausted",
		"eof",
		"temporary failure",
		"too many requests",
		"rate limit",
		"429",
		"503",
		"502",
		"504",
		"busy",
		"unavailable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// Do executes fn with retries using exponential backoff
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn with retries and returns the result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Don't retry non-retryable errors
		if !IsRetryable(err) {
			return result, err
		}

		// Don't retry on last attempt
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(cfg.backoff(attempt)):
		}
	}

	return result, lastErr
}

// backoff doubles the base delay per attempt, capped at MaxDelay, plus 0-25% jitter
func (cfg Config) backoff(attempt int) time.Duration {
	delay := cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay/4 > 0 {
		delay += time.Duration(rand.Int63n(int64(delay / 4)))
	}
	return delay
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker implements a simple circuit breaker pattern.
// It is safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	failures    int
	threshold   int
	resetAfter  time.Duration
	lastFailure time.Time
	open        bool
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(threshold int, resetAfter time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:  threshold,
		resetAfter: resetAfter,
	}
}

// Allow checks if a request should be allowed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return true
	}

	// Check if we should try to reset
	if time.Since(cb.lastFailure) > cb.resetAfter {
		cb.open = false
		cb.failures = 0
		return true
	}

	return false
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failures = 0
	cb.open = false
	cb.mu.Unlock()
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.threshold {
		cb.open = true
	}
	cb.mu.Unlock()
}

// IsOpen returns whether the circuit is open
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// Execute runs fn if the circuit allows it and records the outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
