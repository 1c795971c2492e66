package embedding

import (
	"context"
	"fmt"
	"time"

	qerrors "github.com/northbound/deptqa/internal/errors"
)

// RetryConfig configures exponential backoff for transient provider calls.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches the provider's own retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// WithRetry runs fn with exponential backoff, stopping early on a
// non-retryable error or context cancellation.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !qerrors.IsRetryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("embedding: failed after retries: %w", lastErr)
}

// EmbedWithRetry wraps a single EmbedOne call with the default retry
// policy.
func EmbedWithRetry(ctx context.Context, p Provider, text string, maxRetries int) ([]float32, error) {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = maxRetries

	var vec []float32
	err := WithRetry(ctx, cfg, func() error {
		v, err := p.EmbedOne(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}
