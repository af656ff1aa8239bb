package store

import (
	"context"
	"math"
	"math/rand"
	"time"

	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int           // Maximum number of retry attempts
	BaseDelay     time.Duration // Base delay between retries
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Exponential backoff multiplier
	JitterFactor  float64       // Jitter factor to prevent thundering herd
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// IsRetryable reports whether an error is worth retrying. Conflicts are not:
// the caller must re-read and reconcile before writing again. Expired
// credentials are not either, they need a refresh, not a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if appErrors.IsUnavailable(err) {
		return true
	}
	if awsErr, ok := err.(interface{ ErrorCode() string }); ok {
		switch awsErr.ErrorCode() {
		case "ServiceUnavailable", "Throttling", "ThrottlingException",
			"ProvisionedThroughputExceededException", "RequestLimitExceeded",
			"RequestTimeout", "InternalServerError":
			return true
		}
	}
	return false
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// RetryWithBackoff executes an operation with exponential backoff retry logic
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation RetryableOperation) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := config.calculateDelay(attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return appErrors.Wrap(lastErr, "operation failed after retries")
}

// calculateDelay calculates the delay for the given attempt number
func (c RetryConfig) calculateDelay(attempt int) time.Duration {
	backoff := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt))

	// Apply jitter to prevent thundering herd
	jitter := backoff * c.JitterFactor * (rand.Float64() - 0.5) * 2
	delay := time.Duration(backoff + jitter)

	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	return delay
}
