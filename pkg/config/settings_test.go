package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValidates(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, "EXPONENTIAL_BACKOFF", s.Retry.Strategy)
	assert.Equal(t, "COUNT_BASED", s.CircuitBreaker.SlidingWindowType)
	assert.True(t, *s.Parallelism.Enabled)
	assert.Equal(t, "info", s.Logging.Level)
}

func TestCircuitBreakerSettingsRejectsUnknownWindowType(t *testing.T) {
	var c CircuitBreakerSettings
	c.SetDefaults()
	c.SlidingWindowType = "BOGUS"
	assert.Error(t, c.Validate())
}

func TestMemorySettingsRejectsOutOfOrderThresholds(t *testing.T) {
	m := MemorySettings{WarningThreshold: 0.9, CriticalThreshold: 0.7, EmergencyThreshold: 0.98}
	assert.Error(t, m.Validate())
}

func TestWorkflowSettingsToEngineConfigCarriesParallelismKnobs(t *testing.T) {
	var w WorkflowSettings
	w.SetDefaults()
	var p ParallelismSettings
	p.SetDefaults()
	p.MaxThreads = 4

	cfg := w.ToEngineConfig(p, nil)
	assert.Equal(t, 4, cfg.MaxThreads)
	assert.Equal(t, w.StageDefaultTimeout, cfg.StageDefaultTimeout)
	assert.NotNil(t, cfg.ApprovalSink)
}

func TestToolSettingsConvertersCarryFields(t *testing.T) {
	ts := ToolSettings{ShellAllowedCommands: []string{"ls"}, FileReadBaseDir: "/tmp/data"}
	ts.SetDefaults()

	shell := ts.ToShellConfig()
	assert.Equal(t, []string{"ls"}, shell.AllowedCommands)

	fr := ts.ToFileReadConfig()
	assert.Equal(t, "/tmp/data", fr.BaseDir)
	assert.Equal(t, ts.FileReadMaxSize, fr.MaxBytes)
}

func TestRetrySettingsRejectsUnknownStrategy(t *testing.T) {
	r := RetrySettings{Strategy: "WHATEVER", MaxAttempts: 1}
	assert.Error(t, r.Validate())
}
