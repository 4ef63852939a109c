// Package config defines the typed settings struct the engine consumes
// (spec.md §6: "the engine takes a typed settings struct"). Conductor does
// not parse YAML/TOML/env files into Settings itself — that loading is an
// external collaborator's job — but it does own credential resolution
// (secrets.go) since every provider constructor needs it.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-conductor/conductor/pkg/engine"
	"github.com/go-conductor/conductor/pkg/resilience"
	"github.com/go-conductor/conductor/pkg/tool"
)

// Settings is the root typed configuration object, covering every
// "recognized option" spec.md §6 names: retry, circuitBreaker, rateLimiter,
// timeLimiter, parallelism, memory, workflow/approval, and tools.
type Settings struct {
	Retry          RetrySettings
	CircuitBreaker CircuitBreakerSettings
	RateLimiter    RateLimiterSettings
	TimeLimiter    TimeLimiterSettings
	Parallelism    ParallelismSettings
	Memory         MemorySettings
	Workflow       WorkflowSettings
	Tools          ToolSettings
	Logging        LoggerConfig
}

// DefaultSettings returns a Settings populated by each sub-struct's
// SetDefaults. Some of these differ from the package-level DefaultXConfig
// values: the retry jitter factor and total-duration budget, and the circuit
// breaker's window size and half-open permits.
func DefaultSettings() Settings {
	var s Settings
	s.SetDefaults()
	return s
}

func (s *Settings) SetDefaults() {
	s.Retry.SetDefaults()
	s.CircuitBreaker.SetDefaults()
	s.RateLimiter.SetDefaults()
	s.TimeLimiter.SetDefaults()
	s.Parallelism.SetDefaults()
	s.Memory.SetDefaults()
	s.Workflow.SetDefaults()
	s.Tools.SetDefaults()
	s.Logging.SetDefaults()
}

func (s *Settings) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&s.Retry, &s.CircuitBreaker, &s.RateLimiter, &s.TimeLimiter,
		&s.Parallelism, &s.Memory, &s.Workflow, &s.Tools, &s.Logging,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RetrySettings mirrors spec.md §4.4's retry.* options.
type RetrySettings struct {
	Strategy          string // "NONE" | "FIXED_DELAY" | "EXPONENTIAL_BACKOFF"
	MaxAttempts       int
	InitialDelayMS    int
	MaxDelayMS        int
	Multiplier        float64
	JitterEnabled     *bool
	JitterFactor      float64
	MaxTotalDuration  time.Duration
}

func (c *RetrySettings) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "EXPONENTIAL_BACKOFF"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelayMS <= 0 {
		c.InitialDelayMS = 200
	}
	if c.MaxDelayMS <= 0 {
		c.MaxDelayMS = 10_000
	}
	if c.Multiplier <= 1.0 {
		c.Multiplier = 2.0
	}
	if c.JitterEnabled == nil {
		c.JitterEnabled = boolPtr(true)
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = 0.2
	}
}

func (c *RetrySettings) Validate() error {
	switch c.Strategy {
	case "NONE", "FIXED_DELAY", "EXPONENTIAL_BACKOFF":
	default:
		return fmt.Errorf("config: invalid retry.strategy %q, must be NONE, FIXED_DELAY, or EXPONENTIAL_BACKOFF", c.Strategy)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.maxAttempts must be positive")
	}
	return nil
}

func (c *RetrySettings) ToRetryConfig() resilience.RetryConfig {
	strategy := resilience.ExponentialBackoff
	switch c.Strategy {
	case "NONE":
		strategy = resilience.NoRetry
	case "FIXED_DELAY":
		strategy = resilience.FixedDelay
	}
	return resilience.RetryConfig{
		MaxAttempts:      c.MaxAttempts,
		Strategy:         strategy,
		InitialDelay:     time.Duration(c.InitialDelayMS) * time.Millisecond,
		MaxDelay:         time.Duration(c.MaxDelayMS) * time.Millisecond,
		Multiplier:       c.Multiplier,
		JitterEnabled:    c.JitterEnabled != nil && *c.JitterEnabled,
		JitterFactor:     c.JitterFactor,
		MaxTotalDuration: c.MaxTotalDuration,
	}
}

// CircuitBreakerSettings mirrors spec.md §4.4's circuitBreaker.* options.
type CircuitBreakerSettings struct {
	SlidingWindowType          string // "COUNT_BASED" | "TIME_BASED"
	SlidingWindowSize          int
	SlidingWindowDuration      time.Duration
	MinimumNumberOfCalls       int
	FailureRateThreshold       float64
	SlowCallDurationThreshold  time.Duration
	SlowCallRateThreshold      float64
	WaitDurationInOpenState    time.Duration
	PermittedCallsInHalfOpen   int
}

func (c *CircuitBreakerSettings) SetDefaults() {
	if c.SlidingWindowType == "" {
		c.SlidingWindowType = "COUNT_BASED"
	}
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = 20
	}
	if c.SlidingWindowDuration <= 0 {
		c.SlidingWindowDuration = time.Minute
	}
	if c.MinimumNumberOfCalls <= 0 {
		c.MinimumNumberOfCalls = 10
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = 50
	}
	if c.SlowCallDurationThreshold <= 0 {
		c.SlowCallDurationThreshold = 5 * time.Second
	}
	if c.SlowCallRateThreshold <= 0 {
		c.SlowCallRateThreshold = 100
	}
	if c.WaitDurationInOpenState <= 0 {
		c.WaitDurationInOpenState = 30 * time.Second
	}
	if c.PermittedCallsInHalfOpen <= 0 {
		c.PermittedCallsInHalfOpen = 5
	}
}

func (c *CircuitBreakerSettings) Validate() error {
	if c.SlidingWindowType != "COUNT_BASED" && c.SlidingWindowType != "TIME_BASED" {
		return fmt.Errorf("config: invalid circuitBreaker.slidingWindowType %q, must be COUNT_BASED or TIME_BASED", c.SlidingWindowType)
	}
	return nil
}

func (c *CircuitBreakerSettings) ToBreakerConfig() resilience.BreakerConfig {
	window := resilience.CountBasedWindow
	if c.SlidingWindowType == "TIME_BASED" {
		window = resilience.TimeBasedWindow
	}
	return resilience.BreakerConfig{
		Window:                    window,
		WindowSize:                c.SlidingWindowSize,
		WindowDuration:            c.SlidingWindowDuration,
		MinimumCalls:              c.MinimumNumberOfCalls,
		FailureRateThreshold:      c.FailureRateThreshold,
		SlowCallDurationThreshold: c.SlowCallDurationThreshold,
		SlowCallRateThreshold:     c.SlowCallRateThreshold,
		WaitDurationInOpenState:   c.WaitDurationInOpenState,
		PermittedCallsInHalfOpen:  uint32(c.PermittedCallsInHalfOpen),
	}
}

// RateLimiterSettings mirrors spec.md §4.4's rateLimiter.* options.
type RateLimiterSettings struct {
	LimitForPeriod     int
	LimitRefreshPeriod time.Duration
	TimeoutDuration    time.Duration
}

func (c *RateLimiterSettings) SetDefaults() {
	if c.LimitForPeriod <= 0 {
		c.LimitForPeriod = 60
	}
	if c.LimitRefreshPeriod <= 0 {
		c.LimitRefreshPeriod = time.Minute
	}
	if c.TimeoutDuration <= 0 {
		c.TimeoutDuration = 5 * time.Second
	}
}

func (c *RateLimiterSettings) Validate() error {
	if c.LimitForPeriod <= 0 {
		return fmt.Errorf("config: rateLimiter.limitForPeriod must be positive")
	}
	return nil
}

func (c *RateLimiterSettings) ToRateLimiterConfig() resilience.RateLimiterConfig {
	return resilience.RateLimiterConfig{
		LimitForPeriod:     c.LimitForPeriod,
		LimitRefreshPeriod: c.LimitRefreshPeriod,
		TimeoutDuration:    c.TimeoutDuration,
	}
}

// TimeLimiterSettings mirrors spec.md §4.4's timeLimiter.* option.
type TimeLimiterSettings struct {
	Timeout time.Duration
}

func (c *TimeLimiterSettings) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
}

func (c *TimeLimiterSettings) Validate() error { return nil }

// ParallelismSettings mirrors spec.md §6's parallelism.* options.
type ParallelismSettings struct {
	Enabled                      *bool
	MaxThreads                   int
	MaxTasksPerBatch             int
	TaskTimeoutSeconds           int
	BatchTimeoutSeconds          int
	FallbackSequential           *bool
	MinTasksForParallelExecution int
	ParallelismThreshold         float64
}

func (c *ParallelismSettings) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = boolPtr(true)
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = runtime.GOMAXPROCS(0)
	}
	if c.MaxTasksPerBatch <= 0 {
		c.MaxTasksPerBatch = 8
	}
	if c.TaskTimeoutSeconds <= 0 {
		c.TaskTimeoutSeconds = 60
	}
	if c.BatchTimeoutSeconds <= 0 {
		c.BatchTimeoutSeconds = 1800
	}
	if c.FallbackSequential == nil {
		c.FallbackSequential = boolPtr(true)
	}
	if c.MinTasksForParallelExecution <= 0 {
		c.MinTasksForParallelExecution = 2
	}
	if c.ParallelismThreshold <= 0 {
		c.ParallelismThreshold = 0.3
	}
}

func (c *ParallelismSettings) Validate() error {
	if c.ParallelismThreshold < 0 || c.ParallelismThreshold > 1 {
		return fmt.Errorf("config: parallelism.parallelismThreshold must be in [0,1]")
	}
	return nil
}

// MemorySettings mirrors spec.md §6's memory.* options. Conductor's C1
// Memory Store does not yet enforce the warning/critical/emergency
// thresholds itself; they're declared here so a caller (e.g. a background
// sweep invoking Store.Expire, or a usage-reporting hook) has a typed place
// to read them from.
type MemorySettings struct {
	DefaultLimit       int
	MaxEntries         int
	RetentionDays      int
	WarningThreshold   float64
	CriticalThreshold  float64
	EmergencyThreshold float64
}

func (c *MemorySettings) SetDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10_000
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = 0.7
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = 0.9
	}
	if c.EmergencyThreshold <= 0 {
		c.EmergencyThreshold = 0.98
	}
}

func (c *MemorySettings) Validate() error {
	if c.WarningThreshold >= c.CriticalThreshold || c.CriticalThreshold >= c.EmergencyThreshold {
		return fmt.Errorf("config: memory thresholds must satisfy warning < critical < emergency")
	}
	return nil
}

// RetentionCutoff returns the time before which entries are eligible for
// Store.Expire, given now.
func (c MemorySettings) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.RetentionDays)
}

// WorkflowSettings mirrors spec.md §6's workflow.approval.* and related
// options.
type WorkflowSettings struct {
	ApprovalDefaultTimeout time.Duration
	ApprovalMaxTimeout     time.Duration
	StageDefaultTimeout    time.Duration
	MaxStages              int
	MaxDependencyDepth     int
}

func (c *WorkflowSettings) SetDefaults() {
	if c.ApprovalDefaultTimeout <= 0 {
		c.ApprovalDefaultTimeout = engine.DefaultApprovalTimeout
	}
	if c.ApprovalMaxTimeout <= 0 {
		c.ApprovalMaxTimeout = engine.MaxApprovalTimeout
	}
	if c.StageDefaultTimeout <= 0 {
		c.StageDefaultTimeout = 60 * time.Second
	}
	if c.MaxStages <= 0 {
		c.MaxStages = 100
	}
	if c.MaxDependencyDepth <= 0 {
		c.MaxDependencyDepth = 20
	}
}

func (c *WorkflowSettings) Validate() error {
	if c.ApprovalDefaultTimeout > c.ApprovalMaxTimeout {
		return fmt.Errorf("config: workflow.approval.defaultTimeout cannot exceed maxTimeout")
	}
	return nil
}

// ToEngineConfig folds this settings struct and a ParallelismSettings into
// an engine.Config. sink is the caller's ApprovalSink; nil defaults to
// engine.AutoApprove{}.
func (c WorkflowSettings) ToEngineConfig(parallelism ParallelismSettings, sink engine.ApprovalSink) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.StageDefaultTimeout = c.StageDefaultTimeout
	cfg.BatchTimeoutSeconds = parallelism.BatchTimeoutSeconds
	cfg.MaxThreads = parallelism.MaxThreads
	cfg.MaxParallelTasksPerBatch = parallelism.MaxTasksPerBatch
	cfg.MinTasksForParallelExecution = parallelism.MinTasksForParallelExecution
	cfg.ParallelismThreshold = parallelism.ParallelismThreshold
	cfg.FallbackToSequential = parallelism.FallbackSequential == nil || *parallelism.FallbackSequential
	cfg.DAGOptions = engine.Options{MaxDependencyDepth: c.MaxDependencyDepth, MaxStages: c.MaxStages}
	if sink != nil {
		cfg.ApprovalSink = sink
	}
	return cfg
}

// ToolSettings mirrors spec.md §6's tools.* options.
type ToolSettings struct {
	ShellExecTimeout      time.Duration
	ShellAllowedCommands  []string
	FileReadBaseDir       string
	FileReadAllowSymlinks bool // not yet enforced by FileReadTool, which always rejects symlinks
	FileReadMaxSize       int64
	FileReadMaxPathLength int
}

func (c *ToolSettings) SetDefaults() {
	if c.ShellExecTimeout <= 0 {
		c.ShellExecTimeout = 30 * time.Second
	}
	if c.FileReadMaxSize <= 0 {
		c.FileReadMaxSize = 10 * 1024 * 1024
	}
	if c.FileReadMaxPathLength <= 0 {
		c.FileReadMaxPathLength = 4096
	}
}

func (c *ToolSettings) Validate() error {
	if c.FileReadBaseDir == "" {
		return nil // file-read tool is optional; only required if constructed
	}
	return nil
}

func (c ToolSettings) ToShellConfig() tool.ShellConfig {
	return tool.ShellConfig{AllowedCommands: c.ShellAllowedCommands, Timeout: c.ShellExecTimeout}
}

func (c ToolSettings) ToFileReadConfig() tool.FileReadConfig {
	return tool.FileReadConfig{BaseDir: c.FileReadBaseDir, MaxBytes: c.FileReadMaxSize, MaxPathLength: c.FileReadMaxPathLength}
}

func boolPtr(b bool) *bool { return &b }
