package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCallWholeResponseIsJSON(t *testing.T) {
	call, ok := parseToolCall(`{"tool":"search","arguments":{"q":"go"}}`)
	require.True(t, ok)
	assert.Equal(t, "search", call.Tool)
}

func TestParseToolCallFencedBlock(t *testing.T) {
	resp := "Sure, let me check that.\n```json\n{\"tool\":\"search\",\"arguments\":{\"q\":\"go\"}}\n```\n"
	call, ok := parseToolCall(resp)
	require.True(t, ok)
	assert.Equal(t, "search", call.Tool)
}

func TestParseToolCallPlainTextIsNotAToolCall(t *testing.T) {
	_, ok := parseToolCall("The answer is 42.")
	assert.False(t, ok)
}

func TestParseToolCallMultipleFencedBlocksIsNotAToolCall(t *testing.T) {
	resp := "```json\n{\"tool\":\"a\",\"arguments\":{}}\n```\nand also\n```json\n{\"tool\":\"b\",\"arguments\":{}}\n```"
	_, ok := parseToolCall(resp)
	assert.False(t, ok)
}

func TestArgumentsAsMapFromObject(t *testing.T) {
	m, err := argumentsAsMap([]byte(`{"q":"go"}`))
	require.NoError(t, err)
	assert.Equal(t, "go", m["q"])
}

func TestArgumentsAsMapFromEncodedString(t *testing.T) {
	m, err := argumentsAsMap([]byte(`"{\"q\":\"go\"}"`))
	require.NoError(t, err)
	assert.Equal(t, "go", m["q"])
}

func TestArgumentsAsMapEmpty(t *testing.T) {
	m, err := argumentsAsMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}
