package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conductor/conductor/pkg/memory"
	"github.com/go-conductor/conductor/pkg/provider"
	"github.com/go-conductor/conductor/pkg/tool"
)

// fakeMemory is a minimal in-process memory.Store double for agent tests;
// it doesn't need artifact/expire semantics since Execute never calls them.
type fakeMemory struct {
	mu      sync.Mutex
	entries map[string][]memory.Entry
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{entries: make(map[string][]memory.Entry)}
}

func (m *fakeMemory) key(workflowID, agentName string) string { return workflowID + "::" + agentName }

func (m *fakeMemory) Append(ctx context.Context, workflowID, agentName string, kind memory.EntryKind, content string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(workflowID, agentName)
	seq := uint64(len(m.entries[k]) + 1)
	m.entries[k] = append(m.entries[k], memory.Entry{
		WorkflowID: workflowID, AgentName: agentName, Seq: seq, Kind: kind, Content: content, CreatedAt: time.Now(),
	})
	return seq, nil
}

func (m *fakeMemory) Read(ctx context.Context, workflowID, agentName string, lastN int) ([]memory.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.entries[m.key(workflowID, agentName)]
	if lastN <= 0 || lastN >= len(all) {
		return append([]memory.Entry{}, all...), nil
	}
	return append([]memory.Entry{}, all[len(all)-lastN:]...), nil
}

func (m *fakeMemory) ReadBudgeted(ctx context.Context, workflowID, agentName string, lastN, maxTokens int) ([]memory.Entry, error) {
	return m.Read(ctx, workflowID, agentName, lastN)
}

func (m *fakeMemory) PutArtifact(ctx context.Context, workflowID, key, value string) error { return nil }
func (m *fakeMemory) GetArtifact(ctx context.Context, workflowID, key string) (string, bool, error) {
	return "", false, nil
}
func (m *fakeMemory) Snapshot(ctx context.Context, workflowID string) ([]memory.Entry, error) {
	return nil, nil
}
func (m *fakeMemory) Expire(ctx context.Context, olderThan time.Time) error { return nil }
func (m *fakeMemory) Close() error                                         { return nil }

// fakeProvider returns queued responses in order, one per Generate call.
type fakeProvider struct {
	responses []string
	calls     []string
	i         int
}

func (p *fakeProvider) Info() provider.Info { return provider.Info{Name: "fake", Model: "fake-1"} }

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.calls = append(p.calls, prompt)
	if p.i >= len(p.responses) {
		return "", assertNoMoreResponses
	}
	out := p.responses[p.i]
	p.i++
	return out, nil
}

var assertNoMoreResponses = &exhaustedError{}

type exhaustedError struct{}

func (e *exhaustedError) Error() string { return "fake provider: no more queued responses" }

// echoTool returns its arguments' "msg" field as output.
type echoTool struct{}

func (echoTool) Name() string      { return "echo" }
func (echoTool) Describe() string  { return "echoes the msg argument" }
func (echoTool) Schema() []byte    { return []byte(`{"type":"object","properties":{"msg":{"type":"string"}}}`) }
func (echoTool) Invoke(ctx context.Context, arguments map[string]any) tool.Result {
	msg, _ := arguments["msg"].(string)
	return tool.Result{Tool: "echo", OK: true, Output: msg}
}

func TestExecuteReturnsModelTextWhenNoToolCall(t *testing.T) {
	p := &fakeProvider{responses: []string{"hello there"}}
	mem := newFakeMemory()
	a := New(Config{
		Name:                 "writer",
		SystemPromptTemplate: "Answer: {{prompt}}",
		Provider:             p,
		Memory:               mem,
	}, nil)

	result := a.Execute(context.Background(), ExecuteParams{WorkflowID: "wf1", Input: "hi"})

	require.True(t, result.Success)
	assert.Equal(t, "hello there", result.Output)
	assert.Contains(t, p.calls[0], "Answer: hi")

	entries, _ := mem.Read(context.Background(), "wf1", "writer", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, memory.KindAgentTurn, entries[0].Kind)
}

func TestExecuteDispatchesToolCallAndReturnsOutput(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"tool":"echo","arguments":{"msg":"pong"}}`}}
	mem := newFakeMemory()
	registry := tool.NewRegistry()
	registry.Register(echoTool{})

	a := New(Config{
		Name:                 "caller",
		SystemPromptTemplate: "{{prompt}}",
		Provider:             p,
		Tools:                registry,
		Memory:               mem,
	}, nil)

	result := a.Execute(context.Background(), ExecuteParams{WorkflowID: "wf1", Input: "ping"})

	require.True(t, result.Success)
	assert.Equal(t, "pong", result.Output)

	entries, _ := mem.Read(context.Background(), "wf1", "caller", 0)
	require.Len(t, entries, 3)
	assert.Equal(t, memory.KindToolCall, entries[0].Kind)
	assert.Equal(t, memory.KindToolResult, entries[1].Kind)
	assert.Equal(t, memory.KindAgentTurn, entries[2].Kind)
}

func TestExecuteUnknownToolReturnsRawTextAndNotFoundMemoryEntry(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"tool":"missing","arguments":{}}`}}
	mem := newFakeMemory()
	registry := tool.NewRegistry()

	a := New(Config{
		Name:                 "caller",
		SystemPromptTemplate: "{{prompt}}",
		Provider:             p,
		Tools:                registry,
		Memory:               mem,
	}, nil)

	result := a.Execute(context.Background(), ExecuteParams{WorkflowID: "wf1", Input: "ping"})

	require.True(t, result.Success)
	assert.Equal(t, `{"tool":"missing","arguments":{}}`, result.Output)

	entries, _ := mem.Read(context.Background(), "wf1", "caller", 0)
	require.Len(t, entries, 2)
	assert.Equal(t, memory.KindToolResult, entries[0].Kind)
	assert.Equal(t, memory.KindAgentTurn, entries[1].Kind)
}

func TestExecuteFollowUpOnToolResultIssuesSecondProviderCall(t *testing.T) {
	p := &fakeProvider{responses: []string{
		`{"tool":"echo","arguments":{"msg":"pong"}}`,
		"final answer using pong",
	}}
	mem := newFakeMemory()
	registry := tool.NewRegistry()
	registry.Register(echoTool{})

	a := New(Config{
		Name:                 "caller",
		SystemPromptTemplate: "{{prompt}}",
		Provider:             p,
		Tools:                registry,
		Memory:               mem,
		FollowUpOnToolResult: true,
	}, nil)

	result := a.Execute(context.Background(), ExecuteParams{WorkflowID: "wf1", Input: "ping"})

	require.True(t, result.Success)
	assert.Equal(t, "final answer using pong", result.Output)
	assert.Len(t, p.calls, 2)
}

func TestExecuteProviderFailureRecordsSystemEntryAndFails(t *testing.T) {
	p := &fakeProvider{} // no queued responses -> Generate always errors
	mem := newFakeMemory()

	a := New(Config{
		Name:                 "writer",
		SystemPromptTemplate: "{{prompt}}",
		Provider:             p,
		Memory:               mem,
	}, nil)

	result := a.Execute(context.Background(), ExecuteParams{WorkflowID: "wf1", Input: "hi"})

	require.False(t, result.Success)
	require.NotNil(t, result.Error)

	entries, _ := mem.Read(context.Background(), "wf1", "writer", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, memory.KindSystem, entries[0].Kind)
}
