package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAdmitsWithinBurst(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{
		LimitForPeriod:     5,
		LimitRefreshPeriod: time.Second,
		TimeoutDuration:    time.Second,
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func TestRateLimiterTimesOutWhenExhausted(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{
		LimitForPeriod:     1,
		LimitRefreshPeriod: time.Hour,
		TimeoutDuration:    20 * time.Millisecond,
	})

	require.NoError(t, l.Wait(context.Background()))

	err := l.Wait(context.Background())
	assert.Error(t, err)
}

func TestKeyedRateLimiterSharesBucketPerProviderOperation(t *testing.T) {
	k := NewKeyed(RateLimiterConfig{LimitForPeriod: 1, LimitRefreshPeriod: time.Hour, TimeoutDuration: time.Millisecond})

	a := k.Get("openai", "generate")
	b := k.Get("openai", "generate")
	c := k.Get("anthropic", "generate")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
