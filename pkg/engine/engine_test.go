package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conductor/conductor/pkg/agent"
	"github.com/go-conductor/conductor/pkg/planner"
	"github.com/go-conductor/conductor/pkg/provider"
)

// fixedProvider answers every Generate call with the same text, recording
// every prompt it was given so tests can assert on variable substitution.
type fixedProvider struct {
	mu     sync.Mutex
	text   string
	delay  time.Duration
	calls  []string
	failOn func(prompt string) bool
}

func (p *fixedProvider) Info() provider.Info { return provider.Info{Name: "fixed", Model: "fixed-1"} }

func (p *fixedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, prompt)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.failOn != nil && p.failOn(prompt) {
		return "", assertGenerateFailed
	}
	return p.text, nil
}

var assertGenerateFailed = &generateFailedError{}

type generateFailedError struct{}

func (e *generateFailedError) Error() string { return "fixed provider: forced failure" }

func newTestAgent(name, text string) *agent.Agent {
	return agent.New(agent.Config{
		Name:                 name,
		SystemPromptTemplate: "{{prompt}}",
		Provider:             &fixedProvider{text: text},
	}, nil)
}

func stageSpec(name string, deps ...string) planner.StageSpec {
	return planner.StageSpec{
		Name:           name,
		PromptTemplate: "{{prompt}}",
		DependsOn:      deps,
		AgentBinding:   name,
	}
}

func TestRunExecutesLinearDependencyChainInOrder(t *testing.T) {
	stages := []planner.StageSpec{
		stageSpec("fetch"),
		stageSpec("summarize", "fetch"),
	}
	agents := map[string]*agent.Agent{
		"fetch":     newTestAgent("fetch", "raw-data"),
		"summarize": newTestAgent("summarize", "summary"),
	}

	e := New(DefaultConfig(), nil)
	results, err := e.Run(context.Background(), "wf-1", "chain", stages, agents, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]StageResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StageSucceeded, byName["fetch"].State)
	assert.Equal(t, StageSucceeded, byName["summarize"].State)
	assert.Equal(t, "raw-data", byName["fetch"].Output)
	assert.Equal(t, "summary", byName["summarize"].Output)
}

// TestRunSubstitutesDottedDependencyOutputReferences exercises spec.md §8
// scenario 2's worked example directly: downstream stages reference an
// upstream stage's output as ${stageName.output}, and that reference must
// be replaced with the stage's actual recorded output, not left as literal
// unsubstituted text.
func TestRunSubstitutesDottedDependencyOutputReferences(t *testing.T) {
	stages := []planner.StageSpec{
		{Name: "A", PromptTemplate: "{{prompt}}", AgentBinding: "A"},
		{Name: "B", PromptTemplate: "B saw: ${A.output}", DependsOn: []string{"A"}, AgentBinding: "B"},
		{Name: "C", PromptTemplate: "C saw: ${A.output} and {{B.output}}", DependsOn: []string{"A", "B"}, AgentBinding: "C"},
	}
	aProvider := &fixedProvider{text: "A-result"}
	bProvider := &fixedProvider{text: "B-result"}
	cProvider := &fixedProvider{text: "C-result"}
	agents := map[string]*agent.Agent{
		"A": agent.New(agent.Config{Name: "A", SystemPromptTemplate: "{{prompt}}", Provider: aProvider}, nil),
		"B": agent.New(agent.Config{Name: "B", SystemPromptTemplate: "{{prompt}}", Provider: bProvider}, nil),
		"C": agent.New(agent.Config{Name: "C", SystemPromptTemplate: "{{prompt}}", Provider: cProvider}, nil),
	}

	e := New(DefaultConfig(), nil)
	results, err := e.Run(context.Background(), "wf-dotted", "dotted", stages, agents, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.Equal(t, StageSucceeded, r.State, "stage %q", r.Name)
	}

	require.Len(t, bProvider.calls, 1)
	assert.Equal(t, "B saw: A-result", bProvider.calls[0])

	require.Len(t, cProvider.calls, 1)
	assert.Equal(t, "C saw: A-result and B-result", cProvider.calls[0])
}

func TestRunExecutesIndependentStagesInParallel(t *testing.T) {
	stages := []planner.StageSpec{
		stageSpec("left"),
		stageSpec("right"),
		stageSpec("join", "left", "right"),
	}
	agents := map[string]*agent.Agent{
		"left":  newTestAgent("left", "L"),
		"right": newTestAgent("right", "R"),
		"join":  newTestAgent("join", "joined"),
	}

	e := New(DefaultConfig(), nil)
	results, err := e.Run(context.Background(), "wf-2", "fanout", stages, agents, nil)
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, StageSucceeded, r.State, "stage %s", r.Name)
	}
}

func TestRunCancelsDependentsOfFailedStage(t *testing.T) {
	stages := []planner.StageSpec{
		stageSpec("risky"),
		stageSpec("downstream", "risky"),
		stageSpec("unrelated"),
	}
	failingProvider := &fixedProvider{failOn: func(string) bool { return true }}
	agents := map[string]*agent.Agent{
		"risky":      agent.New(agent.Config{Name: "risky", SystemPromptTemplate: "{{prompt}}", Provider: failingProvider}, nil),
		"downstream": newTestAgent("downstream", "never"),
		"unrelated":  newTestAgent("unrelated", "fine"),
	}

	e := New(DefaultConfig(), nil)
	results, err := e.Run(context.Background(), "wf-3", "cascade", stages, agents, nil)
	require.NoError(t, err)

	byName := map[string]StageResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StageFailed, byName["risky"].State)
	assert.Equal(t, StageCancelled, byName["downstream"].State)
	assert.Equal(t, StageSucceeded, byName["unrelated"].State)
}

func TestRunFailsStageWithUnboundAgent(t *testing.T) {
	stages := []planner.StageSpec{stageSpec("orphan")}
	e := New(DefaultConfig(), nil)

	results, err := e.Run(context.Background(), "wf-4", "unbound", stages, map[string]*agent.Agent{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageFailed, results[0].State)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "AGENT_UNBOUND", results[0].Error.Code)
}

type scriptedApprovalSink struct {
	decision ApprovalDecision
	note     string
}

func (s scriptedApprovalSink) Request(ctx context.Context, workflowID, stageName, output string, timeout time.Duration) (ApprovalDecision, string, error) {
	return s.decision, s.note, nil
}

func TestRunSucceedsStageAfterApprovalAccepted(t *testing.T) {
	spec := stageSpec("publish")
	spec.ApprovalRequired = true

	cfg := DefaultConfig()
	cfg.ApprovalSink = scriptedApprovalSink{decision: ApprovalAccepted}
	e := New(cfg, nil)

	agents := map[string]*agent.Agent{"publish": newTestAgent("publish", "draft")}
	results, err := e.Run(context.Background(), "wf-5", "approval", []planner.StageSpec{spec}, agents, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageSucceeded, results[0].State)
	assert.Equal(t, "draft", results[0].Output)
}

func TestRunFailsStageWhenApprovalRejected(t *testing.T) {
	spec := stageSpec("publish")
	spec.ApprovalRequired = true

	cfg := DefaultConfig()
	cfg.ApprovalSink = scriptedApprovalSink{decision: ApprovalRejected, note: "needs more detail"}
	e := New(cfg, nil)

	agents := map[string]*agent.Agent{"publish": newTestAgent("publish", "draft")}
	results, err := e.Run(context.Background(), "wf-6", "approval-reject", []planner.StageSpec{spec}, agents, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageFailed, results[0].State)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "APPROVAL_REJECTED", results[0].Error.Code)
}

func TestRunFailsStageWhenApprovalTimesOut(t *testing.T) {
	spec := stageSpec("publish")
	spec.ApprovalRequired = true

	cfg := DefaultConfig()
	cfg.ApprovalSink = scriptedApprovalSink{decision: ApprovalTimedOut}
	e := New(cfg, nil)

	agents := map[string]*agent.Agent{"publish": newTestAgent("publish", "draft")}
	results, err := e.Run(context.Background(), "wf-7", "approval-timeout", []planner.StageSpec{spec}, agents, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageFailed, results[0].State)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "APPROVAL_TIMEOUT", results[0].Error.Code)
}

func TestRunFailsRunningStageOnStageTimeout(t *testing.T) {
	slowProvider := &fixedProvider{text: "done", delay: 200 * time.Millisecond}
	stages := []planner.StageSpec{stageSpec("slow")}
	agents := map[string]*agent.Agent{
		"slow": agent.New(agent.Config{Name: "slow", SystemPromptTemplate: "{{prompt}}", Provider: slowProvider}, nil),
	}

	cfg := DefaultConfig()
	cfg.BatchTimeoutSeconds = 0 // normalized to 1800 by New, so set the timeout via StageDefaultTimeout path instead
	cfg.StageDefaultTimeout = 10 * time.Millisecond
	e := New(cfg, nil)

	results, err := e.Run(context.Background(), "wf-8", "slow-stage", stages, agents, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageFailed, results[0].State)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "STAGE_TIMEOUT", results[0].Error.Code)
}

func TestRunRejectsCyclicStages(t *testing.T) {
	stages := []planner.StageSpec{
		stageSpec("a", "b"),
		stageSpec("b", "a"),
	}
	e := New(DefaultConfig(), nil)
	_, err := e.Run(context.Background(), "wf-9", "cycle", stages, map[string]*agent.Agent{}, nil)
	require.Error(t, err)
}
