package agent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/logger"
	"github.com/go-conductor/conductor/pkg/memory"
	"github.com/go-conductor/conductor/pkg/provider"
	"github.com/go-conductor/conductor/pkg/tool"
)

// ExecutionResult is the outcome of one Agent.Execute call.
type ExecutionResult struct {
	Success    bool
	Output     string
	DurationMS int64
	Error      *errs.StructuredError
}

// Config describes one agent's identity and bindings. SystemPromptTemplate
// is rendered fresh on every Execute call rather than once at construction,
// since {{memory}} and {{timestamp}} change between calls.
type Config struct {
	Name                 string
	SystemPromptTemplate string
	Provider             provider.Provider
	Tools                *tool.Registry // nil disables tool-call parsing entirely
	Memory               memory.Store
	MemoryLimit          int           // entries read from C1 before rendering; 0 or less uses 20
	ToolTimeout          time.Duration // per-invocation timeout passed to context.WithTimeout
	FollowUpOnToolResult bool          // feed ToolResult back as a second provider turn instead of returning it directly
}

// Agent executes one prompt->provider->(optional tool)->memory turn. It
// holds no per-call state; Config is read-only across concurrent Execute
// calls from different workflows, since nothing here is workflow-scoped
// except the workflowID/stageName/workflowName arguments threaded through
// each call.
type Agent struct {
	cfg       Config
	templates *TemplateCache
}

func New(cfg Config, templates *TemplateCache) *Agent {
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 20
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if templates == nil {
		templates = NewTemplateCache(0, 0)
	}
	return &Agent{cfg: cfg, templates: templates}
}

// ExecuteParams supplies the per-call context Execute needs beyond the
// agent's static Config: which workflow/stage this turn belongs to, the
// caller's input, and any extra template variables from prior stage
// outputs or shared workflow variables.
type ExecuteParams struct {
	WorkflowID   string
	WorkflowName string
	StageName    string
	Input        string
	Variables    map[string]string
}

func (a *Agent) Execute(ctx context.Context, p ExecuteParams) *ExecutionResult {
	start := time.Now()

	memoryText := ""
	if a.cfg.Memory != nil && a.cfg.MemoryLimit > 0 {
		entries, err := a.cfg.Memory.Read(ctx, p.WorkflowID, a.cfg.Name, a.cfg.MemoryLimit)
		if err != nil {
			return a.fail(ctx, p, start, errs.Internal("MEMORY_READ_FAILED", "failed to read agent memory").Wrap(err))
		}
		memoryText = formatMemory(entries)
	}

	prompt := a.renderPrompt(p, memoryText)

	text, err := a.cfg.Provider.Generate(ctx, prompt)
	if err != nil {
		return a.fail(ctx, p, start, asStructuredError(err))
	}

	output := text
	call, isToolCall := parseToolCall(text)
	if isToolCall && a.cfg.Tools != nil {
		output, err = a.handleToolCall(ctx, p, call, prompt, text)
		if err != nil {
			return a.fail(ctx, p, start, asStructuredError(err))
		}
	}

	if a.cfg.Memory != nil {
		if _, err := a.cfg.Memory.Append(ctx, p.WorkflowID, a.cfg.Name, memory.KindAgentTurn, output); err != nil {
			return a.fail(ctx, p, start, errs.Internal("MEMORY_APPEND_FAILED", "failed to append agent turn").Wrap(err))
		}
	}

	return &ExecutionResult{Success: true, Output: output, DurationMS: time.Since(start).Milliseconds()}
}

func (a *Agent) handleToolCall(ctx context.Context, p ExecuteParams, call toolCallRequest, priorPrompt, rawText string) (string, error) {
	args, err := argumentsAsMap(call.Arguments)
	if err != nil {
		return "", err
	}

	if _, ok := a.cfg.Tools.Lookup(call.Tool); !ok {
		result := tool.Result{
			Tool: call.Tool,
			OK:   false,
			Error: errs.NotFound(fmt.Sprintf("TOOL_NOT_FOUND:%s", call.Tool),
				fmt.Sprintf("tool %q is not registered", call.Tool)),
		}
		a.appendToolResult(ctx, p, result)
		return rawText, nil
	}

	if a.cfg.Memory != nil {
		if _, err := a.cfg.Memory.Append(ctx, p.WorkflowID, a.cfg.Name, memory.KindToolCall, callSummary(call)); err != nil {
			return "", errs.Internal("MEMORY_APPEND_FAILED", "failed to append tool call").Wrap(err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
	defer cancel()
	result := a.cfg.Tools.Invoke(callCtx, call.Tool, args)
	a.appendToolResult(ctx, p, result)

	if !a.cfg.FollowUpOnToolResult {
		return result.Output, nil
	}

	followUp := priorPrompt + "\n\nTool result for " + call.Tool + ":\n" + result.Output
	return a.cfg.Provider.Generate(ctx, followUp)
}

func (a *Agent) appendToolResult(ctx context.Context, p ExecuteParams, result tool.Result) {
	if a.cfg.Memory == nil {
		return
	}
	content := result.Output
	if !result.OK && result.Error != nil {
		content = result.Error.Error()
	}
	_, _ = a.cfg.Memory.Append(ctx, p.WorkflowID, a.cfg.Name, memory.KindToolResult, content)
}

func (a *Agent) fail(ctx context.Context, p ExecuteParams, start time.Time, structured *errs.StructuredError) *ExecutionResult {
	structured = structured.WithCorrelationID(p.WorkflowID)
	logger.LogStructuredError(ctx, fmt.Sprintf("agent %q turn failed on stage %q", a.cfg.Name, p.StageName), structured)

	if a.cfg.Memory != nil {
		_, _ = a.cfg.Memory.Append(ctx, p.WorkflowID, a.cfg.Name, memory.KindSystem, structured.Error())
	}
	return &ExecutionResult{Success: false, Error: structured, DurationMS: time.Since(start).Milliseconds()}
}

func (a *Agent) renderPrompt(p ExecuteParams, memoryText string) string {
	vars := make(map[string]string, len(p.Variables)+5)
	for k, v := range p.Variables {
		vars[k] = v
	}
	vars["prompt"] = p.Input
	vars["memory"] = memoryText
	vars["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	vars["stage_name"] = p.StageName
	vars["workflow_name"] = p.WorkflowName

	return a.templates.Get(a.cfg.SystemPromptTemplate).Render(vars)
}

func formatMemory(entries []memory.Entry) string {
	var out string
	for _, e := range entries {
		out += "[" + string(e.Kind) + "] " + e.Content + "\n"
	}
	return out
}

func callSummary(call toolCallRequest) string {
	return call.Tool + " " + strconv.Quote(string(call.Arguments))
}

func asStructuredError(err error) *errs.StructuredError {
	if se, ok := errs.As(err); ok {
		return se
	}
	category := errs.CategoryFor(err)
	retryable := errs.Classify(err)
	hint := errs.RecoveryRetryWithBackoff
	if !retryable {
		hint = errs.RecoveryNone
	}
	return errs.New(category, "PROVIDER_CALL_FAILED", err.Error(), retryable, hint).Wrap(err)
}
