// Package resilience composes rate limiting, circuit breaking, retry, and
// per-call time limits around a provider.Provider, in the fixed order
// RateLimiter -> CircuitBreaker -> Retry -> TimeLimiter -> Provider: the
// rate limiter protects the dependency first, the breaker short-circuits
// known-bad targets before any retry spends a budget on them, retries run
// inside the breaker so each attempt is observed by its state, and the time
// limiter sits innermost so it bounds a single attempt rather than the
// retry loop as a whole.
package resilience

import (
	"context"
	"time"

	"github.com/go-conductor/conductor/pkg/provider"
)

// Config bundles the four policy configs applied to a wrapped provider.
type Config struct {
	RateLimiter RateLimiterConfig
	Breaker     BreakerConfig
	Retry       RetryConfig
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RateLimiter: DefaultRateLimiterConfig(),
		Breaker:     DefaultBreakerConfig(),
		Retry:       DefaultRetryConfig(),
		CallTimeout: 20 * time.Second,
	}
}

// ResilientProvider decorates a provider.Provider with the composed policy
// chain. It satisfies provider.Provider itself, so it can be substituted
// anywhere a plain provider is expected.
type ResilientProvider struct {
	inner       provider.Provider
	operation   string
	rateLimiter *RateLimiter
	breaker     *Breaker
	retrier     *Retrier
	timeLimiter *TimeLimiter
}

// Wrap builds a ResilientProvider around inner. rateLimiters and breakers
// are keyed registries shared across every wrapped provider in the process,
// so that distinct agents calling the same (providerName, operation) pair
// observe the same bucket and breaker state.
func Wrap(inner provider.Provider, operation string, rateLimiters *Keyed, breakers *Registry, cfg Config) *ResilientProvider {
	name := inner.Info().Name
	return &ResilientProvider{
		inner:       inner,
		operation:   operation,
		rateLimiter: rateLimiters.Get(name, operation),
		breaker:     breakers.Get(name, operation),
		retrier:     NewRetrier(cfg.Retry),
		timeLimiter: NewTimeLimiter(cfg.CallTimeout),
	}
}

func (p *ResilientProvider) Info() provider.Info {
	return p.inner.Info()
}

func (p *ResilientProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
		return p.retrier.Do(ctx, func(ctx context.Context) (string, error) {
			return p.timeLimiter.Do(ctx, func(ctx context.Context) (string, error) {
				return p.inner.Generate(ctx, prompt)
			})
		})
	})
}
