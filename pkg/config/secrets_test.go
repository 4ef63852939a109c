package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvSecretResolverPrefersEnvironmentVariable(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-value")
	r := NewEnvSecretResolver(map[string]string{"openai": "fallback-value"})

	v, ok := r.Resolve("openai")
	assert.True(t, ok)
	assert.Equal(t, "env-value", v)
}

func TestEnvSecretResolverFallsBackWhenEnvMissing(t *testing.T) {
	r := NewEnvSecretResolver(map[string]string{"internal-tool": "fallback-value"})

	v, ok := r.Resolve("internal-tool")
	assert.True(t, ok)
	assert.Equal(t, "fallback-value", v)
}

func TestEnvSecretResolverReportsMiss(t *testing.T) {
	r := NewEnvSecretResolver(nil)

	_, ok := r.Resolve("nonexistent")
	assert.False(t, ok)
}

func TestEnvSecretResolverHonorsEnvVarOverride(t *testing.T) {
	t.Setenv("MY_CUSTOM_VAR", "custom-value")
	r := NewEnvSecretResolver(nil)
	r.EnvVar["custom"] = "MY_CUSTOM_VAR"

	v, ok := r.Resolve("custom")
	assert.True(t, ok)
	assert.Equal(t, "custom-value", v)
}
