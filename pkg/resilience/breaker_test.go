package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterFailureRateThresholdAndShortCircuits(t *testing.T) {
	cfg := BreakerConfig{
		Window:                   CountBasedWindow,
		WindowSize:               10,
		MinimumCalls:             10,
		FailureRateThreshold:     50.0,
		SlowCallRateThreshold:    100.0,
		WaitDurationInOpenState:  100 * time.Millisecond,
		PermittedCallsInHalfOpen: 2,
	}
	b := NewBreaker("test-open", cfg)

	calls := 0
	failing := func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	}
	for i := 0; i < 10; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}

	callsBeforeProbe := calls
	_, err := b.Execute(context.Background(), failing)
	require.Error(t, err)
	assert.Equal(t, callsBeforeProbe, calls, "circuit-open call must not invoke the wrapped function")
}

func TestBreakerRecoversAfterWaitDuration(t *testing.T) {
	cfg := BreakerConfig{
		Window:                   CountBasedWindow,
		WindowSize:               10,
		MinimumCalls:             10,
		FailureRateThreshold:     50.0,
		SlowCallRateThreshold:    100.0,
		WaitDurationInOpenState:  30 * time.Millisecond,
		PermittedCallsInHalfOpen: 2,
	}
	b := NewBreaker("test-recover", cfg)

	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }
	succeeding := func(ctx context.Context) (string, error) { return "ok", nil }

	for i := 0; i < 10; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}

	time.Sleep(40 * time.Millisecond)

	out, err := b.Execute(context.Background(), succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
