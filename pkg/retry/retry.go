package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"go.uber.org/zap"
)

// Config controls how a failed attempt is re-run
type Config struct {
	// MaxRetries is the number of re-runs after the first attempt
	MaxRetries int
	// InitialDelay is the wait before the first re-run
	InitialDelay time.Duration
	// MaxDelay caps the wait between re-runs
	MaxDelay time.Duration
	// Multiplier grows the wait after every re-run
	Multiplier float64
	// Jitter spreads waits by ±25%
	Jitter bool
	// Retryable selects the errors worth another attempt. Nil retries nothing.
	Retryable func(error) bool
	// OnRetry, if set, is called with the 1-based attempt that just failed
	// and its error before waiting
	OnRetry func(attempt int, err error)
	// Clock drives the waits; nil uses the wall clock
	Clock clock.Clock
}

// ConflictConfig returns the backoff used to re-read a page version after the
// server rejected a write. Only errors accepted by retryable are re-run.
func ConflictConfig(maxRetries int, retryable func(error) bool) Config {
	return Config{
		MaxRetries:   maxRetries,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		Retryable:    retryable,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s still failing after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// DoWithResult runs fn until it succeeds, fails with a non-retryable error or
// runs out of retries. A non-retryable error, or any error when MaxRetries is
// zero, is returned as is; running out of retries returns *ExhaustedError.
func DoWithResult[T any](ctx context.Context, config Config, operation string, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	attempts := config.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt))
			}
			return res, nil
		}

		if config.Retryable == nil || !config.Retryable(err) || config.MaxRetries == 0 {
			return zero, err
		}
		if attempt == attempts {
			logger.Error("Operation failed after all retries",
				zap.String("operation", operation),
				zap.Int("attempts", attempts),
				zap.Error(err))
			return zero, &ExhaustedError{Operation: operation, Attempts: attempts, Err: err}
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}

		delay := calculateDelay(attempt-1, config)
		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", config.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-clk.After(delay):
		}
	}
}

// calculateDelay returns the exponential backoff wait before re-run n (0-based)
func calculateDelay(n int, config Config) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(n))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.25
		//nolint:gosec // G404: retry jitter needs no crypto randomness
		delay += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	return time.Duration(delay)
}
