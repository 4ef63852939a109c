package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conductor/conductor/pkg/engine"
	"github.com/go-conductor/conductor/pkg/memory"
	"github.com/go-conductor/conductor/pkg/planner"
	"github.com/go-conductor/conductor/pkg/provider"
)

// fakeStore is a minimal in-process memory.Store double, the same shape as
// pkg/agent's test double: enough to exercise Append/Read/PutArtifact
// without pulling in a SQL or Redis backend for facade-level tests.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[string][]memory.Entry
	artifacts map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]memory.Entry), artifacts: make(map[string]string)}
}

func (s *fakeStore) key(workflowID, agentName string) string { return workflowID + "::" + agentName }

func (s *fakeStore) Append(ctx context.Context, workflowID, agentName string, kind memory.EntryKind, content string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(workflowID, agentName)
	seq := uint64(len(s.entries[k]) + 1)
	s.entries[k] = append(s.entries[k], memory.Entry{WorkflowID: workflowID, AgentName: agentName, Seq: seq, Kind: kind, Content: content, CreatedAt: time.Now()})
	return seq, nil
}

func (s *fakeStore) Read(ctx context.Context, workflowID, agentName string, lastN int) ([]memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[s.key(workflowID, agentName)]
	if lastN <= 0 || lastN >= len(all) {
		return append([]memory.Entry{}, all...), nil
	}
	return append([]memory.Entry{}, all[len(all)-lastN:]...), nil
}

func (s *fakeStore) ReadBudgeted(ctx context.Context, workflowID, agentName string, lastN, maxTokens int) ([]memory.Entry, error) {
	return s.Read(ctx, workflowID, agentName, lastN)
}

func (s *fakeStore) PutArtifact(ctx context.Context, workflowID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[workflowID+"::"+key] = value
	return nil
}

func (s *fakeStore) GetArtifact(ctx context.Context, workflowID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.artifacts[workflowID+"::"+key]
	return v, ok, nil
}

func (s *fakeStore) Snapshot(ctx context.Context, workflowID string) ([]memory.Entry, error) { return nil, nil }
func (s *fakeStore) Expire(ctx context.Context, olderThan time.Time) error                   { return nil }
func (s *fakeStore) Close() error                                                            { return nil }

type scriptedProvider struct {
	responses []string
	i         int
}

func (p *scriptedProvider) Info() provider.Info { return provider.Info{Name: "scripted", Model: "scripted-1"} }

func (p *scriptedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.i >= len(p.responses) {
		return p.responses[len(p.responses)-1], nil
	}
	out := p.responses[p.i]
	p.i++
	return out, nil
}

func TestRunWorkflowSkipsPlanningAndExecutesGivenStages(t *testing.T) {
	orc := New(newFakeStore())
	stages := []planner.StageSpec{
		{Name: "draft", PromptTemplate: "{{prompt}}", AgentBinding: "writer"},
	}
	workers := []AgentSpec{
		{Name: "writer", SystemPromptTemplate: "{{prompt}}", Provider: &scriptedProvider{responses: []string{"a draft"}}},
	}

	results, err := orc.RunWorkflow(context.Background(), "wf-1", "draft-flow", stages, workers, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, engine.StageSucceeded, results[0].State)
	assert.Equal(t, "a draft", results[0].Output)
}

func TestPlanAndExecutePlansThenRuns(t *testing.T) {
	orc := New(newFakeStore())
	planResponse := `{"stages": [{"name": "step1", "prompt_template": "{{prompt}}", "depends_on": [], "agent_binding": "worker"}]}`
	plannerProvider := &scriptedProvider{responses: []string{planResponse}}
	workers := []AgentSpec{
		{Name: "worker", SystemPromptTemplate: "{{prompt}}", Provider: &scriptedProvider{responses: []string{"result"}}},
	}

	results, err := orc.PlanAndExecute(context.Background(), "wf-2", "planned-flow", "do the thing", plannerProvider, workers, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "step1", results[0].Name)
	assert.Equal(t, engine.StageSucceeded, results[0].State)
	assert.Equal(t, "result", results[0].Output)
}

// TestPlanAndExecuteOnEmptyGoalYieldsSuccessfulEmptyWorkflow pins the
// round-trip property end to end: planning then executing an empty goal
// must yield zero stage results and no error, all the way through the
// engine's DAG construction and scheduling, not just at the planner.
func TestPlanAndExecuteOnEmptyGoalYieldsSuccessfulEmptyWorkflow(t *testing.T) {
	orc := New(newFakeStore())
	plannerProvider := &scriptedProvider{responses: nil}

	results, err := orc.PlanAndExecute(context.Background(), "wf-empty", "empty-flow", "", plannerProvider, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunWorkflowAssignsGeneratedWorkflowIDWhenBlank(t *testing.T) {
	store := newFakeStore()
	orc := New(store)
	stages := []planner.StageSpec{{Name: "draft", PromptTemplate: "{{prompt}}", AgentBinding: "writer"}}
	workers := []AgentSpec{
		{Name: "writer", SystemPromptTemplate: "{{prompt}}", Provider: &scriptedProvider{responses: []string{"a draft"}}},
	}

	results, err := orc.RunWorkflow(context.Background(), "", "draft-flow", stages, workers, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, engine.StageSucceeded, results[0].State)

	// The stage's artifact is persisted under "<workflowID>::draft"; a blank
	// workflowID must have been replaced with a real uuid before that write.
	require.Len(t, store.artifacts, 1)
	var key string
	for k := range store.artifacts {
		key = k
	}
	workflowID := strings.TrimSuffix(key, "::draft")
	_, uuidErr := uuid.Parse(workflowID)
	assert.NoError(t, uuidErr, "blank workflowID must be replaced with a real uuid before reaching memory/artifact writes")
}

func TestRunWorkflowRejectsAgentSpecWithNoProvider(t *testing.T) {
	orc := New(nil)
	stages := []planner.StageSpec{{Name: "a", AgentBinding: "x"}}
	workers := []AgentSpec{{Name: "x"}}

	_, err := orc.RunWorkflow(context.Background(), "wf-3", "bad-spec", stages, workers, nil)
	require.Error(t, err)
}
