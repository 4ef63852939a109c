package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrierSucceedsOnThirdAttempt(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:      3,
		Strategy:         ExponentialBackoff,
		InitialDelay:     10 * time.Millisecond,
		MaxDelay:         time.Second,
		Multiplier:       2.0,
		MaxTotalDuration: time.Second,
	}
	r := NewRetrier(cfg)

	attempts := 0
	out, err := r.Do(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("429 rate limit")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}

func TestRetrierStopsImmediatelyOnNonRetryableError(t *testing.T) {
	r := NewRetrier(DefaultRetryConfig())

	attempts := 0
	_, err := r.Do(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("invalid api key")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetrierStopsAfterMaxAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:      3,
		Strategy:         FixedDelay,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Millisecond,
		MaxTotalDuration: time.Second,
	}
	r := NewRetrier(cfg)

	attempts := 0
	_, err := r.Do(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("503 service unavailable")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrierDelayIsClampedToMaxDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   10.0,
	}
	r := NewRetrier(cfg)

	assert.Equal(t, 100*time.Millisecond, r.delayFor(1))
	assert.LessOrEqual(t, r.delayFor(5), 150*time.Millisecond)
}
