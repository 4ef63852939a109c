// Package agent implements the agent runtime: prompt templating, a provider
// call, optional tool-call parsing and dispatch, and memory bookkeeping
// around a single execute(input) operation.
package agent

import (
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// placeholderRegex matches both ${var} and {{var}} tokens. The identifier
// may contain dots, so a stage can reference a dependency's output as
// ${stageName.output} (the form spec.md's worked examples use) alongside
// plain variable names like {{prompt}}. Unlike the teacher's
// pkg/instruction placeholder syntax (single braces, state-scoped prefixes,
// an "artifact." namespace, a required/optional distinction), this template
// language is a flat variable substitution over a caller-supplied map:
// unknown tokens resolve to the empty string rather than erroring.
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z0-9_.]+)\}|\{\{([A-Za-z0-9_.]+)\}\}`)

// Template is a compiled prompt template: the placeholder positions have
// already been located, so rendering is a single pass over the raw string.
type Template struct {
	raw     string
	matches [][]int
}

func compile(raw string) *Template {
	return &Template{raw: raw, matches: placeholderRegex.FindAllStringSubmatchIndex(raw, -1)}
}

// Render substitutes every placeholder with its value from vars. A
// placeholder with no entry in vars becomes the empty string.
func (t *Template) Render(vars map[string]string) string {
	if len(t.matches) == 0 {
		return t.raw
	}
	var b strings.Builder
	last := 0
	for _, m := range t.matches {
		start, end := m[0], m[1]
		b.WriteString(t.raw[last:start])

		var name string
		if m[2] != -1 {
			name = t.raw[m[2]:m[3]] // ${var}
		} else {
			name = t.raw[m[4]:m[5]] // {{var}}
		}
		b.WriteString(vars[name])
		last = end
	}
	b.WriteString(t.raw[last:])
	return b.String()
}

// TemplateCache compiles and caches templates keyed by their raw text, with
// LRU eviction and a TTL so a long-lived process doesn't accumulate
// templates from stages that ran once and never recur.
type TemplateCache struct {
	cache *lru.LRU[string, *Template]
}

func NewTemplateCache(size int, ttl time.Duration) *TemplateCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TemplateCache{cache: lru.NewLRU[string, *Template](size, nil, ttl)}
}

func (c *TemplateCache) Get(raw string) *Template {
	if t, ok := c.cache.Get(raw); ok {
		return t
	}
	t := compile(raw)
	c.cache.Add(raw, t)
	return t
}
