package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
)

// RetryStrategy selects how the delay before a retry attempt is computed.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	FixedDelay
	ExponentialBackoff
)

// RetryConfig mirrors the retry policy knobs of the composed provider
// decorator: strategy, attempt ceiling, per-attempt delay bounds, and an
// overall wall-clock budget across all attempts.
type RetryConfig struct {
	MaxAttempts     int
	Strategy        RetryStrategy
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	JitterEnabled   bool
	JitterFactor    float64
	MaxTotalDuration time.Duration
}

// DefaultRetryConfig follows the shape of the teacher httpclient's SmartRetry
// backoff (doubling from a base, capped, with up to 10% jitter) but with its
// own numbers: 3 attempts, 200ms initial delay, 10s cap, 30s total budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      3,
		Strategy:         ExponentialBackoff,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		Multiplier:       2.0,
		JitterEnabled:    true,
		JitterFactor:     0.1,
		MaxTotalDuration: 30 * time.Second,
	}
}

// Retrier runs an operation, retrying on errs.Classify-retryable failures
// according to RetryConfig. Attempt k (1-indexed) waits for
// delay(k) = clamp(initialDelay * multiplier^(k-1), initialDelay, maxDelay)
// before attempt k+1, optionally perturbed by uniform jitter.
type Retrier struct {
	cfg RetryConfig
}

func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = 2.0
	}
	return &Retrier{cfg: cfg}
}

// Do executes fn, retrying per policy. It returns the last error encountered
// if every attempt fails, is classified non-retryable, or the total elapsed
// wait exceeds MaxTotalDuration.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if r.cfg.Strategy == NoRetry {
			return "", lastErr
		}
		if attempt >= r.cfg.MaxAttempts {
			break
		}
		if !errs.Classify(err) {
			return "", lastErr
		}

		delay := r.delayFor(attempt)
		if r.cfg.MaxTotalDuration > 0 && time.Since(start)+delay > r.cfg.MaxTotalDuration {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (r *Retrier) delayFor(attempt int) time.Duration {
	var base time.Duration
	switch r.cfg.Strategy {
	case FixedDelay:
		base = r.cfg.InitialDelay
	default: // ExponentialBackoff
		mult := 1.0
		for i := 1; i < attempt; i++ {
			mult *= r.cfg.Multiplier
		}
		base = time.Duration(float64(r.cfg.InitialDelay) * mult)
	}
	if r.cfg.MaxDelay > 0 && base > r.cfg.MaxDelay {
		base = r.cfg.MaxDelay
	}
	if base < r.cfg.InitialDelay {
		base = r.cfg.InitialDelay
	}
	if !r.cfg.JitterEnabled || r.cfg.JitterFactor <= 0 {
		return base
	}
	spread := float64(base) * r.cfg.JitterFactor
	jitter := (rand.Float64()*2 - 1) * spread
	delay := time.Duration(float64(base) + jitter)
	if delay < 0 {
		delay = 0
	}
	return delay
}
