package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInvokeUnknownToolReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	result := r.Invoke(context.Background(), "nope", nil)
	assert.False(t, result.OK)
	require.NotNil(t, result.Error)
	assert.Equal(t, "NotFound", string(result.Error.Category))
}

func TestShellToolRejectsDisallowedCommand(t *testing.T) {
	tool, err := NewShellTool(ShellConfig{AllowedCommands: []string{"echo"}})
	require.NoError(t, err)

	result := tool.Invoke(context.Background(), map[string]any{"command": "rm -rf /"})
	assert.False(t, result.OK)
	require.NotNil(t, result.Error)
	assert.Equal(t, "Permission", string(result.Error.Category))
}

func TestShellToolRunsAllowedCommand(t *testing.T) {
	tool, err := NewShellTool(ShellConfig{AllowedCommands: []string{"echo"}})
	require.NoError(t, err)

	result := tool.Invoke(context.Background(), map[string]any{"command": "echo hello"})
	require.True(t, result.OK)
	assert.Contains(t, result.Output, "hello")
}

func TestFileReadToolRejectsTraversal(t *testing.T) {
	tool, err := NewFileReadTool(FileReadConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	result := tool.Invoke(context.Background(), map[string]any{"path": "../../etc/passwd"})
	assert.False(t, result.OK)
	require.NotNil(t, result.Error)
	assert.Equal(t, "Permission", string(result.Error.Category))
}

func TestFileReadToolRejectsAbsolutePath(t *testing.T) {
	tool, err := NewFileReadTool(FileReadConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	result := tool.Invoke(context.Background(), map[string]any{"path": "/etc/passwd"})
	assert.False(t, result.OK)
	require.NotNil(t, result.Error)
}

func TestWebSearchToolStubReturnsEmptyResults(t *testing.T) {
	tool, err := NewWebSearchTool(WebSearchConfig{})
	require.NoError(t, err)

	result := tool.Invoke(context.Background(), map[string]any{"query": "conductor orchestration"})
	require.True(t, result.OK)
	assert.Equal(t, "[]", result.Output)
}

func TestShellToolSchemaRejectsMissingCommand(t *testing.T) {
	tool, err := NewShellTool(ShellConfig{AllowedCommands: []string{"echo"}})
	require.NoError(t, err)

	result := tool.Invoke(context.Background(), map[string]any{})
	assert.False(t, result.OK)
	require.NotNil(t, result.Error)
	assert.Equal(t, "Validation", string(result.Error.Category))
}
