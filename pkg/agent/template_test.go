package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesBothTokenStyles(t *testing.T) {
	tpl := compile("Hello ${name}, today is {{day}}. Missing: ${unknown}")
	out := tpl.Render(map[string]string{"name": "Ada", "day": "Monday"})
	assert.Equal(t, "Hello Ada, today is Monday. Missing: ", out)
}

func TestRenderSubstitutesDottedStageOutputReference(t *testing.T) {
	tpl := compile("Summarize: ${research.output} and {{draft.output}}")
	out := tpl.Render(map[string]string{"research.output": "findings", "draft.output": "v1"})
	assert.Equal(t, "Summarize: findings and v1", out)
}

func TestRenderNoPlaceholdersReturnsRawUnchanged(t *testing.T) {
	tpl := compile("no placeholders here")
	assert.Equal(t, "no placeholders here", tpl.Render(map[string]string{"x": "y"}))
}

func TestTemplateCacheReturnsSameCompiledTemplateForSameRaw(t *testing.T) {
	c := NewTemplateCache(10, time.Minute)
	a := c.Get("prompt: {{prompt}}")
	b := c.Get("prompt: {{prompt}}")
	assert.Same(t, a, b)
}

func TestTemplateCacheEvictsAfterTTL(t *testing.T) {
	c := NewTemplateCache(10, 5*time.Millisecond)
	a := c.Get("prompt: {{prompt}}")
	time.Sleep(20 * time.Millisecond)
	b := c.Get("prompt: {{prompt}}")
	assert.NotSame(t, a, b)
}
