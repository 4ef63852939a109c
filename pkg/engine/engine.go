// Package engine implements the Execution Engine: DAG construction and
// validation, wave-by-wave scheduling over a bounded worker pool, the
// per-stage state machine (including the approval gate), batch timeout
// enforcement, and cascading cancellation on failure.
//
// The teacher's workflow.DAGExecutor resolves dependencies with a comment
// admitting it doesn't ("Execute agents sequentially for now - proper DAG
// logic would handle dependencies"); this package is that proper DAG logic.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-conductor/conductor/pkg/agent"
	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/logger"
	"github.com/go-conductor/conductor/pkg/memory"
	"github.com/go-conductor/conductor/pkg/planner"
)

// Config holds the scheduling knobs from spec.md §4.7.
type Config struct {
	MaxThreads                   int
	MaxParallelTasksPerBatch     int
	MinTasksForParallelExecution int
	ParallelismThreshold         float64
	FallbackToSequential         bool
	StageDefaultTimeout          time.Duration
	BatchTimeoutSeconds          int
	ApprovalSink                 ApprovalSink
	DAGOptions                   Options
}

func DefaultConfig() Config {
	return Config{
		MaxThreads:                   runtime.GOMAXPROCS(0),
		MaxParallelTasksPerBatch:     8,
		MinTasksForParallelExecution: 2,
		ParallelismThreshold:         0.3,
		FallbackToSequential:         true,
		StageDefaultTimeout:          60 * time.Second,
		BatchTimeoutSeconds:          1800,
		ApprovalSink:                 AutoApprove{},
		DAGOptions:                   DefaultOptions(),
	}
}

// Engine runs one workflow's DAG to completion.
type Engine struct {
	cfg       Config
	memory    memory.Store
	templates *agent.TemplateCache
}

func New(cfg Config, mem memory.Store) *Engine {
	if cfg.StageDefaultTimeout <= 0 {
		cfg.StageDefaultTimeout = 60 * time.Second
	}
	if cfg.BatchTimeoutSeconds <= 0 {
		cfg.BatchTimeoutSeconds = 1800
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.MinTasksForParallelExecution <= 0 {
		cfg.MinTasksForParallelExecution = 2
	}
	if cfg.ParallelismThreshold <= 0 {
		cfg.ParallelismThreshold = 0.3
	}
	if cfg.ApprovalSink == nil {
		cfg.ApprovalSink = AutoApprove{}
	}
	return &Engine{cfg: cfg, memory: mem, templates: agent.NewTemplateCache(0, 0)}
}

// Run executes stages to terminal status and returns one StageResult per
// stage, in planner order. agents maps a StageSpec's AgentBinding to the
// bound Agent; a binding with no entry fails that stage with
// ConfigError:AGENT_UNBOUND. sharedVariables are available to every stage's
// prompt template alongside its dependencies' outputs.
func (e *Engine) Run(ctx context.Context, workflowID, workflowName string, stages []planner.StageSpec, agents map[string]*agent.Agent, sharedVariables map[string]string) ([]StageResult, error) {
	dag, err := NewDAG(stages, e.cfg.DAGOptions)
	if err != nil {
		return nil, err
	}

	run := &run{
		engine:          e,
		dag:             dag,
		workflowID:      workflowID,
		workflowName:    workflowName,
		agents:          agents,
		sharedVariables: sharedVariables,
		state:           make(map[string]StageState, len(dag.Names())),
		results:         make(map[string]*StageResult, len(dag.Names())),
		outputs:         make(map[string]string, len(dag.Names())),
	}
	for _, name := range dag.Names() {
		run.state[name] = StagePending
	}

	batchCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.BatchTimeoutSeconds)*time.Second)
	defer cancel()

	run.execute(batchCtx)

	if batchCtx.Err() == context.DeadlineExceeded {
		run.finalizeBatchTimeout()
	}

	return run.collectResults(), nil
}

// run holds one Engine.Run invocation's mutable scheduling state.
type run struct {
	engine          *Engine
	dag             *DAG
	workflowID      string
	workflowName    string
	agents          map[string]*agent.Agent
	sharedVariables map[string]string

	mu      sync.Mutex
	state   map[string]StageState
	results map[string]*StageResult
	outputs map[string]string
}

func (r *run) execute(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.propagateCancellation()

		ready := r.readyStages()
		if len(ready) == 0 {
			return
		}

		if r.shouldRunParallel(ready) {
			r.dispatchParallel(ctx, ready)
		} else {
			r.dispatchSequential(ctx, ready)
		}
	}
}

// readyStages returns Pending stages whose dependencies are all terminal-
// successful (Succeeded/Skipped), transitioned to Ready and returned in
// planner order for stable same-batch dispatch.
func (r *run) readyStages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []string
	for _, name := range r.dag.Names() {
		if r.state[name] != StagePending {
			continue
		}
		if r.dependenciesSatisfied(name) {
			r.state[name] = StageReady
			ready = append(ready, name)
		}
	}
	return ready
}

func (r *run) dependenciesSatisfied(name string) bool {
	for _, dep := range r.dag.DependsOn(name) {
		switch r.state[dep] {
		case StageSucceeded, StageSkipped:
			continue
		default:
			return false
		}
	}
	return true
}

// propagateCancellation marks Pending stages Cancelled once any of their
// dependencies has failed or been cancelled — they will never become Ready,
// so they're resolved to a terminal state without execution.
func (r *run) propagateCancellation() {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := true
	for changed {
		changed = false
		for _, name := range r.dag.Names() {
			if r.state[name] != StagePending {
				continue
			}
			for _, dep := range r.dag.DependsOn(name) {
				if r.state[dep] == StageFailed || r.state[dep] == StageCancelled {
					r.state[name] = StageCancelled
					r.results[name] = &StageResult{Name: name, State: StageCancelled}
					changed = true
					break
				}
			}
		}
	}
}

// shouldRunParallel applies the parallelism gate: enabled only when the
// ready count meets MinTasksForParallelExecution and the fraction of
// mutually independent ready stages meets ParallelismThreshold.
func (r *run) shouldRunParallel(ready []string) bool {
	if len(ready) < r.engine.cfg.MinTasksForParallelExecution {
		return false
	}
	independent := r.countIndependent(ready)
	fraction := float64(independent) / float64(len(ready))
	return fraction >= r.engine.cfg.ParallelismThreshold
}

// countIndependent counts how many ready stages have no dependency on any
// other stage in the same ready set (stages in one wave are never each
// other's dependents by construction, but this mirrors the spec's
// independent-fraction language explicitly rather than assuming it).
func (r *run) countIndependent(ready []string) int {
	readySet := make(map[string]bool, len(ready))
	for _, n := range ready {
		readySet[n] = true
	}
	count := 0
	for _, n := range ready {
		independent := true
		for _, dep := range r.dag.DependsOn(n) {
			if readySet[dep] {
				independent = false
				break
			}
		}
		if independent {
			count++
		}
	}
	return count
}

func (r *run) dispatchSequential(ctx context.Context, ready []string) {
	for _, name := range ready {
		r.runStage(ctx, name)
	}
}

func (r *run) dispatchParallel(ctx context.Context, ready []string) {
	g, gctx := errgroup.WithContext(ctx)
	limit := r.engine.cfg.MaxParallelTasksPerBatch
	if limit <= 0 || limit > r.engine.cfg.MaxThreads {
		limit = r.engine.cfg.MaxThreads
	}
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, name := range ready {
		name := name
		g.Go(func() error {
			r.runStage(gctx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil && r.engine.cfg.FallbackToSequential {
		// A worker-pool submission failure (context already cancelled, etc.)
		// downgrades any stages this wave didn't get to run sequentially.
		r.dispatchSequential(ctx, r.stillReady(ready))
	}
}

func (r *run) stillReady(names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range names {
		if r.state[n] == StageReady {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (r *run) finalizeBatchTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.dag.Names() {
		switch r.state[name] {
		case StageRunning:
			r.state[name] = StageFailed
			structured := errs.Timeout(errs.CodeBatchTimeout, "workflow batch timeout exceeded while stage was running").WithCorrelationID(r.workflowID)
			r.results[name] = &StageResult{Name: name, State: StageFailed, Error: structured}
			logger.LogStructuredError(context.Background(), fmt.Sprintf("stage %q failed", name), structured)
		case StageReady, StagePending:
			r.state[name] = StageCancelled
			r.results[name] = &StageResult{Name: name, State: StageCancelled}
		}
	}
}

func (r *run) collectResults() []StageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageResult, 0, len(r.dag.Names()))
	for _, name := range r.dag.Names() {
		if res, ok := r.results[name]; ok {
			out = append(out, *res)
			continue
		}
		out = append(out, StageResult{Name: name, State: r.state[name]})
	}
	return out
}
