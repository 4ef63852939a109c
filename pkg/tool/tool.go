// Package tool implements the Tool Registry: a closed, insertion-order-
// irrelevant map from tool name to tool instance. Tools are reusable,
// thread-safe, and must not retain per-call state — each Invoke receives
// everything it needs through its arguments.
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-conductor/conductor/pkg/errs"
)

// Result is the outcome of a tool invocation. Tool errors are always
// returned this way — never as a Go error from Invoke — so an agent can
// observe and react to a failed tool call instead of the call propagating
// as a panic or aborting the turn.
type Result struct {
	Tool       string
	OK         bool
	Output     string
	Error      *errs.StructuredError
	DurationMS int64
}

// Tool is the contract every registry entry satisfies. Describe returns a
// human-readable description; Schema returns the JSON Schema for Invoke's
// arguments, which each built-in tool also validates against before it runs.
type Tool interface {
	Name() string
	Describe() string
	Schema() []byte // raw JSON Schema document for the arguments object
	Invoke(ctx context.Context, arguments map[string]any) Result
}

// Registry is a closed set of named tools. It is safe for concurrent use;
// registration is expected at startup, invocation during agent turns.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, overwriting any existing tool registered under the
// same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Invoke looks up name and invokes it, returning a NotFound Result if it
// isn't registered. This is the entry point agent runtime turns use instead
// of calling Lookup+Invoke separately, so "tool not found" is always
// represented the same way.
func (r *Registry) Invoke(ctx context.Context, name string, arguments map[string]any) Result {
	t, ok := r.Lookup(name)
	if !ok {
		return Result{
			Tool: name,
			OK:   false,
			Error: errs.NotFound(fmt.Sprintf("TOOL_NOT_FOUND:%s", name),
				fmt.Sprintf("tool %q is not registered", name)),
		}
	}
	return t.Invoke(ctx, arguments)
}
