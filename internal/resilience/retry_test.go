package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func TestRetryWithConfig(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

	tests := []struct {
		name      string
		config    RetryConfig
		failures  int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try succeeds", config: fast, failures: 0, wantCalls: 1},
		{name: "succeeds on last attempt", config: fast, failures: 2, wantCalls: 3},
		{name: "runs out of attempts", config: fast, failures: 5, wantCalls: 3, wantErr: true},
		{name: "permanent error is not retried", config: fast, failures: 5, permanent: true, wantCalls: 1, wantErr: true},
		{name: "zero attempts still calls once", config: RetryConfig{}, failures: 5, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			if tt.permanent {
				cfg.RetryableErrors = func(error) bool { return false }
			}

			calls := 0
			err := RetryWithConfig(context.Background(), cfg, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errFlaky
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errFlaky)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errFlaky))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.JitterEnabled = true
	d := calculateDelay(cfg, 0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 110*time.Millisecond)
}
