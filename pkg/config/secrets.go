package config

import (
	"os"
	"strings"
)

// SecretResolver looks up credential material by a caller-chosen name (e.g.
// "openai", "anthropic", a tool's API key). The engine itself never logs the
// resolved value; only the name passed to Resolve may appear in logs.
type SecretResolver interface {
	Resolve(name string) (value string, ok bool)
}

// EnvSecretResolver resolves name against an environment variable — upper-
// cased and suffixed with _API_KEY by default (so Resolve("openai") checks
// OPENAI_API_KEY) — falling back to a caller-supplied static map for names
// that don't follow that convention or aren't present in the environment.
// Call LoadEnvFiles before constructing one to pick up .env/.env.local.
type EnvSecretResolver struct {
	// EnvVar overrides the env-var name checked for a given secret name,
	// bypassing the _API_KEY convention.
	EnvVar map[string]string
	// Fallback is consulted when no environment variable yields a value.
	Fallback map[string]string
}

func NewEnvSecretResolver(fallback map[string]string) *EnvSecretResolver {
	return &EnvSecretResolver{EnvVar: map[string]string{}, Fallback: fallback}
}

func (r *EnvSecretResolver) Resolve(name string) (string, bool) {
	envVar, ok := r.EnvVar[name]
	if !ok {
		envVar = strings.ToUpper(name) + "_API_KEY"
	}
	if v := os.Getenv(envVar); v != "" {
		return v, true
	}
	if v, ok := r.Fallback[name]; ok && v != "" {
		return v, true
	}
	return "", false
}
