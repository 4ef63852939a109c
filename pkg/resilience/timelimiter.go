package resilience

import (
	"context"
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
)

// TimeLimiter enforces a per-attempt deadline on the wrapped call, innermost
// in the decorator chain so each retry attempt gets its own budget rather
// than sharing one cumulative deadline.
type TimeLimiter struct {
	timeout time.Duration
}

func NewTimeLimiter(timeout time.Duration) *TimeLimiter {
	return &TimeLimiter{timeout: timeout}
}

func (t *TimeLimiter) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	if t.timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := fn(callCtx)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-callCtx.Done():
		return "", errs.Timeout("PROVIDER_CALL_TIMEOUT", "provider call exceeded its time limit").Wrap(callCtx.Err())
	}
}
