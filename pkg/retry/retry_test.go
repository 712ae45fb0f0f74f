package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStale = errors.New("stale version")

func fastConfig(maxRetries int) Config {
	config := ConflictConfig(maxRetries, func(err error) bool { return errors.Is(err, errStale) })
	config.InitialDelay = time.Millisecond
	config.MaxDelay = 2 * time.Millisecond
	config.Jitter = false
	return config
}

func TestDoWithResult_NoRetriesRunsOnce(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastConfig(0), "updatePage", func(int) (int, error) {
		calls++
		return 0, errStale
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errStale, err)
}

func TestDoWithResult_RetriesRetryableUntilSuccess(t *testing.T) {
	var seen []int
	config := fastConfig(3)
	var retried []int
	config.OnRetry = func(attempt int, err error) {
		assert.ErrorIs(t, err, errStale)
		retried = append(retried, attempt)
	}

	result, err := DoWithResult(context.Background(), config, "updatePage", func(attempt int) (int, error) {
		seen = append(seen, attempt)
		if attempt < 3 {
			return 0, errStale
		}
		return 9, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 9, result)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoWithResult_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("HTTP 500")
	_, err := DoWithResult(context.Background(), fastConfig(3), "updatePage", func(int) (int, error) {
		calls++
		return 0, boom
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, boom, err)
}

func TestDoWithResult_NilRetryableRetriesNothing(t *testing.T) {
	config := fastConfig(3)
	config.Retryable = nil

	calls := 0
	_, err := DoWithResult(context.Background(), config, "updatePage", func(int) (int, error) {
		calls++
		return 0, errStale
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errStale, err)
}

func TestDoWithResult_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastConfig(2), "updatePage", func(int) (int, error) {
		calls++
		return 0, errStale
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errStale)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "updatePage", exhausted.Operation)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "updatePage still failing after 3 attempts")
}

func TestDoWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := DoWithResult(ctx, fastConfig(2), "updatePage", func(int) (int, error) {
		calls++
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDoWithResult_WaitsOnConfiguredClock(t *testing.T) {
	mock := clock.NewMock()
	config := fastConfig(1)
	config.InitialDelay = time.Hour
	config.MaxDelay = time.Hour
	config.Clock = mock

	type outcome struct {
		result int
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := DoWithResult(context.Background(), config, "updatePage", func(attempt int) (int, error) {
			if attempt == 1 {
				return 0, errStale
			}
			return 9, nil
		})
		done <- outcome{result, err}
	}()

	for {
		select {
		case out := <-done:
			require.NoError(t, out.err)
			assert.Equal(t, 9, out.result)
			return
		default:
			mock.Add(time.Hour)
		}
	}
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	config := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, calculateDelay(0, config))
	assert.Equal(t, 2*time.Second, calculateDelay(1, config))
	assert.Equal(t, 3*time.Second, calculateDelay(5, config))
}
