package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-conductor/conductor/pkg/agent"
	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/logger"
)

// runStage carries one Ready stage through Running to a terminal state:
// resolve its agent binding, render its prompt against dependency outputs
// and shared variables, execute it under a per-stage timeout, and — if
// approvalRequired — gate the result through the configured ApprovalSink
// before recording it as Succeeded.
func (r *run) runStage(ctx context.Context, name string) {
	spec := r.dag.Spec(name)
	started := time.Now()

	r.setState(name, StageRunning)

	boundAgent, ok := r.agents[spec.AgentBinding]
	if !ok {
		r.finish(name, StageResult{
			Name:      name,
			State:     StageFailed,
			Error:     errs.ConfigError(errs.CodeAgentUnbound, fmt.Sprintf("stage %q binds agent %q, which has no registered Agent", name, spec.AgentBinding)),
			StartedAt: started, FinishedAt: time.Now(),
		})
		return
	}

	vars := r.templateVariables(name)
	prompt := r.engine.templates.Get(spec.PromptTemplate).Render(vars)

	stageTimeout := spec.Timeout
	if stageTimeout <= 0 {
		stageTimeout = r.engine.cfg.StageDefaultTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, stageTimeout)
	result := boundAgent.Execute(stageCtx, agent.ExecuteParams{
		WorkflowID:   r.workflowID,
		WorkflowName: r.workflowName,
		StageName:    name,
		Input:        prompt,
		Variables:    vars,
	})
	cancel()

	if !result.Success {
		stageErr := result.Error
		if stageCtx.Err() == context.DeadlineExceeded {
			stageErr = errs.Timeout("STAGE_TIMEOUT", fmt.Sprintf("stage %q exceeded its timeout of %s", name, stageTimeout)).Wrap(stageCtx.Err())
		}
		r.finish(name, StageResult{Name: name, State: StageFailed, Error: stageErr, StartedAt: started, FinishedAt: time.Now()})
		return
	}

	output := result.Output
	if spec.ApprovalRequired {
		approvalTimeout := spec.ApprovalTimeout
		if approvalTimeout <= 0 {
			approvalTimeout = DefaultApprovalTimeout
		}
		r.setState(name, StageAwaitingApproval)

		decision, note, err := r.engine.cfg.ApprovalSink.Request(ctx, r.workflowID, name, output, approvalTimeout)
		if err != nil {
			r.finish(name, StageResult{Name: name, State: StageFailed, Error: errs.Internal("APPROVAL_SINK_FAILED", "approval sink returned an error").Wrap(err), StartedAt: started, FinishedAt: time.Now()})
			return
		}

		switch decision {
		case ApprovalRejected:
			msg := fmt.Sprintf("stage %q output was rejected during approval", name)
			if note != "" {
				msg += ": " + note
			}
			r.finish(name, StageResult{Name: name, State: StageFailed, Error: errs.Validation(errs.CodeApprovalRejected, msg), StartedAt: started, FinishedAt: time.Now()})
			return
		case ApprovalTimedOut:
			r.finish(name, StageResult{
				Name: name, State: StageFailed,
				Error:     errs.Timeout(errs.CodeApprovalTimeout, fmt.Sprintf("stage %q approval was not decided within %s", name, approvalTimeout)),
				StartedAt: started, FinishedAt: time.Now(),
			})
			return
		}
	}

	if r.engine.memory != nil {
		if err := r.engine.memory.PutArtifact(ctx, r.workflowID, name, output); err != nil {
			r.finish(name, StageResult{Name: name, State: StageFailed, Error: errs.Internal("ARTIFACT_WRITE_FAILED", "failed to persist stage output").Wrap(err), StartedAt: started, FinishedAt: time.Now()})
			return
		}
	}

	r.mu.Lock()
	r.outputs[name] = output
	r.mu.Unlock()

	r.finish(name, StageResult{Name: name, State: StageSucceeded, Output: output, StartedAt: started, FinishedAt: time.Now()})
}

func (r *run) templateVariables(name string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	deps := r.dag.DependsOn(name)
	vars := make(map[string]string, len(r.sharedVariables)+2*len(deps))
	for k, v := range r.sharedVariables {
		vars[k] = v
	}
	for _, dep := range deps {
		output := r.outputs[dep]
		vars[dep] = output            // bare form, e.g. {{fetch}}
		vars[dep+".output"] = output  // dotted form, e.g. ${fetch.output}
	}
	return vars
}

func (r *run) setState(name string, state StageState) {
	r.mu.Lock()
	r.state[name] = state
	r.mu.Unlock()
}

func (r *run) finish(name string, result StageResult) {
	r.mu.Lock()
	r.state[name] = result.State
	res := result
	r.results[name] = &res
	r.mu.Unlock()

	if result.State == StageFailed && result.Error != nil {
		logger.LogStructuredError(context.Background(), fmt.Sprintf("stage %q failed", name), result.Error.WithCorrelationID(r.workflowID))
	}
}
