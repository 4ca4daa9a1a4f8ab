package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig bounds the backoff loop around backend calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     MaxRetries,
		InitialBackoff: InitialBackoffMs * time.Millisecond,
		MaxBackoff:     MaxBackoffMs * time.Millisecond,
		Multiplier:     BackoffMultiplier,
	}
}

// retryWithBackoff retries fn with exponential backoff. Context
// cancellation aborts immediately, between attempts and during waits.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	backoff := cfg.InitialBackoff
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", cfg.MaxRetries, lastErr)
}

// isRetryable reports whether an error is worth retrying. Context
// errors and client-side validation failures are permanent.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrEmptyText) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"status 400", "status 401", "status 403", "status 404", "invalid api key"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}
