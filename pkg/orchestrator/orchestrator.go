// Package orchestrator is the thin coordinator described in spec.md §4.8:
// a facade that ties the planner and execution engine together, owns each
// workflow's id, and wires the shared Memory Store and Tool Registry into
// every agent it builds — so callers never construct C5/C6/C7 themselves.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/go-conductor/conductor/pkg/agent"
	"github.com/go-conductor/conductor/pkg/engine"
	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/memory"
	"github.com/go-conductor/conductor/pkg/planner"
	"github.com/go-conductor/conductor/pkg/provider"
	"github.com/go-conductor/conductor/pkg/tool"
)

// AgentSpec describes one named worker the orchestrator should build and
// bind into a workflow. Name must match a stage's agentBinding for that
// stage to run.
type AgentSpec struct {
	Name                 string
	SystemPromptTemplate string
	Provider             provider.Provider
	MemoryLimit          int
	ToolTimeout          int // seconds; 0 uses agent.Config's default
	FollowUpOnToolResult bool
}

// Orchestrator builds agents on demand from AgentSpecs and runs them
// through the execution engine, injecting the shared Memory Store and Tool
// Registry it was constructed with.
type Orchestrator struct {
	memory  memory.Store
	tools   *tool.Registry
	engCfg  engine.Config
	engine  *engine.Engine
	verbose bool
}

// Option configures an Orchestrator at construction, the way the teacher's
// runtime.Option configures a Runtime with injectable factories.
type Option func(*Orchestrator)

// WithEngineConfig overrides the execution engine's scheduling
// configuration (worker pool size, timeouts, approval sink, ...).
func WithEngineConfig(cfg engine.Config) Option {
	return func(o *Orchestrator) { o.engCfg = cfg }
}

// WithToolRegistry supplies the Tool Registry every built agent shares.
func WithToolRegistry(tools *tool.Registry) Option {
	return func(o *Orchestrator) { o.tools = tools }
}

// New constructs an Orchestrator backed by mem for memory reads/writes and
// artifact persistence. mem may be nil for a stateless orchestrator (no
// cross-stage memory, no artifact durability) — tests and quick scripts use
// this; production deployments always supply a store.
func New(mem memory.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{memory: mem, engCfg: engine.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	o.engine = engine.New(o.engCfg, o.memory)
	return o
}

// buildAgents turns each AgentSpec into a bound *agent.Agent, sharing this
// orchestrator's Memory Store and Tool Registry.
func (o *Orchestrator) buildAgents(specs []AgentSpec) (map[string]*agent.Agent, error) {
	built := make(map[string]*agent.Agent, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, errs.Validation("INVALID_AGENT_SPEC", "agent spec requires a non-empty name")
		}
		if s.Provider == nil {
			return nil, errs.Validation("INVALID_AGENT_SPEC", fmt.Sprintf("agent %q requires a provider", s.Name))
		}
		cfg := agent.Config{
			Name:                 s.Name,
			SystemPromptTemplate: s.SystemPromptTemplate,
			Provider:             s.Provider,
			Tools:                o.tools,
			Memory:               o.memory,
			MemoryLimit:          s.MemoryLimit,
			ToolTimeout:          time.Duration(s.ToolTimeout) * time.Second,
			FollowUpOnToolResult: s.FollowUpOnToolResult,
		}
		built[s.Name] = agent.New(cfg, nil)
	}
	return built, nil
}

// PlanAndExecute plans a stage list for goal using plannerProvider, then
// executes it with the given workers bound in. It is the "planAndExecute"
// entry point from spec.md §4.8. A blank workflowID is assigned a fresh
// uuid.NewString() the way the teacher's SQLSessionService.Create mints a
// sessionID when its caller leaves one blank, so every workflow this
// orchestrator runs has a stable id to correlate logs and errors by even
// when the caller has none of its own to supply.
func (o *Orchestrator) PlanAndExecute(ctx context.Context, workflowID, workflowName, goal string, plannerProvider provider.Provider, workers []AgentSpec, sharedVariables map[string]string) ([]engine.StageResult, error) {
	stages, err := planner.Plan(ctx, plannerProvider, goal)
	if err != nil {
		return nil, err
	}
	return o.RunWorkflow(ctx, workflowID, workflowName, stages, workers, sharedVariables)
}

// RunWorkflow executes a caller-supplied stage list directly, skipping
// planning. It is the "runWorkflow" entry point from spec.md §4.8. See
// PlanAndExecute for the blank-workflowID behavior.
func (o *Orchestrator) RunWorkflow(ctx context.Context, workflowID, workflowName string, stages []planner.StageSpec, workers []AgentSpec, sharedVariables map[string]string) ([]engine.StageResult, error) {
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	agents, err := o.buildAgents(workers)
	if err != nil {
		return nil, err
	}
	return o.engine.Run(ctx, workflowID, workflowName, stages, agents, sharedVariables)
}
