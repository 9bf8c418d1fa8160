package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/agoramesh/agora-backend/pkg/logging"
)

// RetryConfig holds the configuration for retry operations
type RetryConfig struct {
	MaxRetries      int                   // Maximum number of retry attempts
	InitialDelay    time.Duration         // Initial delay between retries
	MaxDelay        time.Duration         // Maximum delay between retries
	BackoffFactor   float64               // Multiplier for exponential backoff
	JitterFactor    float64               // Fraction of the delay added as random jitter
	LogRetryAttempt bool                  // Whether to log retry attempts
	ShouldRetry     func(error, int) bool // Predicate deciding whether the error is retryable
}

// DefaultRetryConfig returns a default configuration for retry operations
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.2,
		LogRetryAttempt: true,
	}
}

// Validate checks the configuration for reasonable values
func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 1 {
		return errors.New("MaxRetries must be >= 1")
	}
	if c.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if c.BackoffFactor < 1.0 {
		return errors.New("BackoffFactor must be >= 1.0")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1.0 {
		return errors.New("JitterFactor must be between 0.0 and 1.0")
	}
	return nil
}

// nextDelay applies exponential backoff capped at MaxDelay.
func nextDelay(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}
	return next
}

// withJitter adds a random fraction of the base delay.
func withJitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	return base + time.Duration(jitterFactor*float64(base)*rand.Float64())
}

// Retry executes the given operation with exponential backoff.
// Returns the result of the operation if successful, or the last error if
// all attempts fail.
func Retry[T any](ctx context.Context, operation func() (T, error), config *RetryConfig, logger logging.Logger) (T, error) {
	var zero T

	if config == nil {
		config = DefaultRetryConfig()
	} else if err := config.Validate(); err != nil {
		return zero, fmt.Errorf("invalid retry config: %w", err)
	}

	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, opErr := operation()
		if opErr == nil {
			return result, nil
		}
		err = opErr

		if config.ShouldRetry != nil && !config.ShouldRetry(err, attempt) {
			return zero, err
		}
		if attempt == config.MaxRetries {
			break
		}

		sleep := withJitter(delay, config.JitterFactor)
		if config.LogRetryAttempt {
			logger.Warnf("Attempt %d/%d failed: %v. Retrying in %v...", attempt, config.MaxRetries, err, sleep)
		}

		select {
		case <-time.After(sleep):
			delay = nextDelay(delay, config.BackoffFactor, config.MaxDelay)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries, err)
}

// RetryFunc executes an operation that only returns an error.
// This is a convenience wrapper around Retry.
func RetryFunc(ctx context.Context, operation func() error, config *RetryConfig, logger logging.Logger) error {
	_, err := Retry(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, config, logger)
	return err
}
