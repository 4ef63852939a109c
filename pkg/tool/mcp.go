package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/go-conductor/conductor/pkg/errs"
)

// MCPToolsetConfig configures a connection to a stdio MCP server: a tool
// source supplementing the three baseline tools, not replacing them.
type MCPToolsetConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Filter limits which remote tools are exposed; empty means all.
	Filter []string
}

// MCPToolset connects to an MCP server over stdio and exposes its tools as
// Registry-compatible Tool values. Connection is lazy: the subprocess is
// spawned on the first call to Tools, not at construction.
type MCPToolset struct {
	cfg       MCPToolsetConfig
	filterSet map[string]bool

	mu        sync.Mutex
	client    *client.Client
	connected bool
}

func NewMCPToolset(cfg MCPToolsetConfig) (*MCPToolset, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("tool: mcp toolset command is required")
	}
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}
	return &MCPToolset{cfg: cfg, filterSet: filterSet}, nil
}

// Tools connects (if not already connected) and returns the remote tools as
// Registry-ready Tool values.
func (m *MCPToolset) Tools(ctx context.Context) ([]Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		if err := m.connect(ctx); err != nil {
			return nil, err
		}
	}

	listResp, err := m.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tool: mcp list tools: %w", err)
	}

	var tools []Tool
	for _, remote := range listResp.Tools {
		if m.filterSet != nil && !m.filterSet[remote.Name] {
			continue
		}
		schemaJSON, err := json.Marshal(remote.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool: mcp marshal input schema for %s: %w", remote.Name, err)
		}
		compiled, err := compileSchema(remote.Name, schemaJSON)
		if err != nil {
			// A remote tool with a schema this compiler rejects is skipped,
			// not fatal to the rest of the toolset.
			continue
		}
		tools = append(tools, &mcpTool{
			toolset: m,
			name:    remote.Name,
			desc:    remote.Description,
			schema:  compiled,
			raw:     schemaJSON,
		})
	}
	return tools, nil
}

func (m *MCPToolset) connect(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(m.cfg.Command, toEnvSlice(m.cfg.Env), m.cfg.Args...)
	if err != nil {
		return fmt.Errorf("tool: mcp client create: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("tool: mcp client start: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "conductor", Version: "0.1.0-alpha"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("tool: mcp initialize: %w", err)
	}

	m.client = mcpClient
	m.connected = true
	return nil
}

func (m *MCPToolset) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func toEnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// mcpTool adapts one remote MCP tool to the Tool interface.
type mcpTool struct {
	toolset *MCPToolset
	name    string
	desc    string
	schema  *compiledSchema
	raw     []byte
}

func (w *mcpTool) Name() string     { return w.name }
func (w *mcpTool) Describe() string { return w.desc }
func (w *mcpTool) Schema() []byte   { return w.raw }

func (w *mcpTool) Invoke(ctx context.Context, arguments map[string]any) Result {
	start := time.Now()
	if sErr := w.schema.validate(w.name, arguments); sErr != nil {
		return Result{Tool: w.name, OK: false, Error: sErr, DurationMS: since(start)}
	}

	w.toolset.mu.Lock()
	mcpClient := w.toolset.client
	w.toolset.mu.Unlock()
	if mcpClient == nil {
		return Result{Tool: w.name, OK: false,
			Error: errs.ServiceUnavailable("MCP_NOT_CONNECTED", "mcp toolset is not connected"), DurationMS: since(start)}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = arguments

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return Result{Tool: w.name, OK: false,
			Error: errs.New(errs.CategoryFor(err), "MCP_CALL_FAILED", err.Error(), errs.Classify(err), errs.RecoveryRetryWithBackoff),
			DurationMS: since(start)}
	}
	if resp.IsError {
		return Result{Tool: w.name, OK: false,
			Error: errs.Internal("MCP_TOOL_ERROR", contentText(resp)), DurationMS: since(start)}
	}
	return Result{Tool: w.name, OK: true, Output: contentText(resp), DurationMS: since(start)}
}

func contentText(resp *mcp.CallToolResult) string {
	var out string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}
