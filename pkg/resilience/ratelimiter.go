package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-conductor/conductor/pkg/errs"
)

// RateLimiterConfig describes a token bucket: limitForPeriod permits are
// refreshed every limitRefreshPeriod, and a caller waits up to
// timeoutDuration for a permit before failing.
type RateLimiterConfig struct {
	LimitForPeriod    int
	LimitRefreshPeriod time.Duration
	TimeoutDuration    time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		LimitForPeriod:     60,
		LimitRefreshPeriod: time.Minute,
		TimeoutDuration:    5 * time.Second,
	}
}

// RateLimiter wraps golang.org/x/time/rate.Limiter as a token bucket admitting
// one call per permit, refreshing limitForPeriod permits per
// limitRefreshPeriod.
type RateLimiter struct {
	limiter *rate.Limiter
	timeout time.Duration
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.LimitForPeriod <= 0 {
		cfg.LimitForPeriod = 1
	}
	if cfg.LimitRefreshPeriod <= 0 {
		cfg.LimitRefreshPeriod = time.Second
	}
	permitsPerSecond := float64(cfg.LimitForPeriod) / cfg.LimitRefreshPeriod.Seconds()
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(permitsPerSecond), cfg.LimitForPeriod),
		timeout: cfg.TimeoutDuration,
	}
}

// Wait blocks until a permit is admitted or the configured timeout elapses,
// whichever comes first. On timeout it returns errs.RateLimit{code:
// RATE_LIMITER_TIMEOUT}.
func (l *RateLimiter) Wait(ctx context.Context) error {
	waitCtx := ctx
	var cancel context.CancelFunc
	if l.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := l.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.RateLimit("RATE_LIMITER_TIMEOUT", "timed out waiting for a rate limit permit").Wrap(err)
	}
	return nil
}

// Keyed owns one RateLimiter per (providerName, operationName), mirroring
// the bucket-sharing requirement: all callers for a given pair share the
// same bucket state.
type Keyed struct {
	mu       sync.Mutex
	cfg      RateLimiterConfig
	limiters map[string]*RateLimiter
}

func NewKeyed(cfg RateLimiterConfig) *Keyed {
	return &Keyed{cfg: cfg, limiters: make(map[string]*RateLimiter)}
}

func (k *Keyed) Get(providerName, operationName string) *RateLimiter {
	key := providerName + "::" + operationName
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.limiters[key]; ok {
		return l
	}
	l := NewRateLimiter(k.cfg)
	k.limiters[key] = l
	return l
}
