// Package planner turns a free-form user goal into an ordered list of stage
// specs by asking a provider to emit one, the way the teacher's
// AutonomousExecutor stubbed "dynamic planning" with a static capability
// scan; this module replaces that stub with a real provider-driven plan
// that the execution engine then validates as a DAG.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/provider"
)

// StageSpec is one planned unit of work, emitted by the planner and later
// turned into a DAG node by the execution engine. ApprovalRequired/Timeout/
// ApprovalTimeout are zero-valued by default planner output (a provider has
// no reason to set them) and are instead populated by whatever constructs a
// StageSpec list directly for runWorkflow, or left at the engine's defaults.
type StageSpec struct {
	Name             string        `json:"name"`
	PromptTemplate   string        `json:"prompt_template"`
	DependsOn        []string      `json:"depends_on"`
	AgentBinding     string        `json:"agent_binding"`
	ApprovalRequired bool          `json:"approval_required,omitempty"`
	Timeout          time.Duration `json:"-"`
	ApprovalTimeout  time.Duration `json:"-"`
}

type planResponse struct {
	Stages []StageSpec `json:"stages"`
}

const planningInstruction = `You are a workflow planner. Given a user goal, respond with a single JSON object of the shape:
{"stages": [{"name": "<unique-name>", "prompt_template": "<template with {{prompt}} etc.>", "depends_on": ["<earlier-stage-name>", ...], "agent_binding": "<agent-name>"}]}
Rules:
- Every name must match [A-Za-z0-9_-]+ and be unique.
- depends_on may only reference stage names that appear earlier in the list.
- Respond with the JSON object and nothing else.

Goal: `

// Plan asks p to emit a stage list for goal, retrying once if the response
// fails to parse — the provider is itself subject to C4's resilience
// decorator, so transient failures are already retried there; this second,
// outer retry covers the case where the call succeeded but returned text
// that isn't a valid plan.
//
// An empty (or all-whitespace) goal short-circuits to zero stages without
// consulting the provider at all: planning then executing an empty goal is
// required to yield a successful, zero-stage workflow, not a planner error.
func Plan(ctx context.Context, p provider.Provider, goal string) ([]StageSpec, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		prompt := planningInstruction + goal
		if attempt > 0 {
			prompt += fmt.Sprintf("\n\nYour previous response could not be parsed as the required JSON shape (%v). Respond again with only the JSON object.", lastErr)
		}

		text, err := p.Generate(ctx, prompt)
		if err != nil {
			return nil, errs.ConfigError(errs.CodeInvalidPlan, "planner provider call failed").Wrap(err)
		}

		stages, parseErr := parsePlan(text)
		if parseErr == nil {
			return stages, nil
		}
		lastErr = parseErr
	}
	return nil, errs.ConfigError(errs.CodeInvalidPlan, fmt.Sprintf("planner response did not parse after retry: %v", lastErr))
}

func parsePlan(text string) ([]StageSpec, error) {
	candidate := strings.TrimSpace(text)
	candidate = stripFence(candidate)

	var resp planResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return nil, err
	}
	// A provider-emitted empty stage list is a valid plan, not a parse
	// failure: see Plan's empty-goal short-circuit for the same property.
	return resp.Stages, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
