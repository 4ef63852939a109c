package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/logger"
)

// WindowKind selects whether the breaker's sliding window is bounded by call
// count or by wall-clock duration.
type WindowKind int

const (
	CountBasedWindow WindowKind = iota
	TimeBasedWindow
)

// BreakerConfig configures a single (providerName, operationName) circuit.
type BreakerConfig struct {
	Window                    WindowKind
	WindowSize                int           // call count, when Window == CountBasedWindow
	WindowDuration            time.Duration // wall clock, when Window == TimeBasedWindow
	MinimumCalls              int
	FailureRateThreshold      float64 // percent, e.g. 50.0
	SlowCallDurationThreshold time.Duration
	SlowCallRateThreshold     float64 // percent
	WaitDurationInOpenState   time.Duration
	PermittedCallsInHalfOpen  uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:                    CountBasedWindow,
		WindowSize:                10,
		MinimumCalls:              10,
		FailureRateThreshold:      50.0,
		SlowCallDurationThreshold: 5 * time.Second,
		SlowCallRateThreshold:     100.0,
		WaitDurationInOpenState:   30 * time.Second,
		PermittedCallsInHalfOpen:  2,
	}
}

// outcome is one call's observed result, recorded into the sliding window
// independent of gobreaker's own internal Counts. gobreaker only tracks
// success/failure; the spec's dual failure-rate/slow-rate threshold needs a
// window that also remembers per-call duration, so the rate math here feeds
// gobreaker.Settings.ReadyToTrip rather than letting gobreaker decide off its
// own Counts.
type outcome struct {
	at      time.Time
	failed  bool
	slow    bool
}

type window struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	entries []outcome
}

func (w *window) record(failed, slow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, outcome{at: time.Now(), failed: failed, slow: slow})
	w.trim()
}

func (w *window) trim() {
	if w.cfg.Window == TimeBasedWindow && w.cfg.WindowDuration > 0 {
		cutoff := time.Now().Add(-w.cfg.WindowDuration)
		i := 0
		for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
			i++
		}
		w.entries = w.entries[i:]
		return
	}
	size := w.cfg.WindowSize
	if size <= 0 {
		size = 10
	}
	if len(w.entries) > size {
		w.entries = w.entries[len(w.entries)-size:]
	}
}

// tripped reports whether the current window breaches the failure-rate or
// slow-call-rate threshold, with at least MinimumCalls observed.
func (w *window) tripped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim()
	n := len(w.entries)
	if n < w.cfg.MinimumCalls {
		return false
	}
	var failures, slows int
	for _, e := range w.entries {
		if e.failed {
			failures++
		}
		if e.slow {
			slows++
		}
	}
	failureRate := 100.0 * float64(failures) / float64(n)
	slowRate := 100.0 * float64(slows) / float64(n)
	return failureRate >= w.cfg.FailureRateThreshold || slowRate >= w.cfg.SlowCallRateThreshold
}

// Breaker wraps sony/gobreaker's state machine (Closed/Open/Half-Open, probe
// budget, wait duration) with an independent sliding-window recorder that
// decides trips by the spec's dual failure-rate/slow-call-rate criterion.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[string]
	win  *window
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	win := &window{cfg: cfg}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.PermittedCallsInHalfOpen,
		Timeout:     cfg.WaitDurationInOpenState,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			return win.tripped()
		},
	}
	return &Breaker{
		name: name,
		cb:   gobreaker.NewCircuitBreaker[string](settings),
		win:  win,
	}
}

// State exposes the current breaker state for diagnostics/metrics.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Execute runs fn through the breaker. When the breaker is open, it fails
// immediately with errs.ServiceUnavailable{code: CIRCUIT_OPEN} without
// invoking fn at all.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		start := time.Now()
		result, callErr := fn(ctx)
		elapsed := time.Since(start)
		slow := b.win.cfg.SlowCallDurationThreshold > 0 && elapsed > b.win.cfg.SlowCallDurationThreshold
		b.win.record(callErr != nil, slow)
		return result, callErr
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		structured := errs.ServiceUnavailable("CIRCUIT_OPEN", "circuit breaker "+b.name+" is open").Wrap(err)
		logger.LogStructuredError(ctx, "circuit breaker rejected call", structured)
		return "", structured
	}
	return out, err
}

// Registry owns one Breaker per (providerName, operationName), shared across
// every agent that invokes that pair, per the resilience stack's
// process-global circuit-breaker state requirement.
type Registry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

func (r *Registry) Get(providerName, operationName string) *Breaker {
	key := providerName + "::" + operationName
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewBreaker(key, r.cfg)
	r.breakers[key] = b
	return b
}
