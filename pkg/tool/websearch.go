package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
)

const webSearchSchemaJSON = `{
  "type": "object",
  "properties": {
    "query": {"type": "string"}
  },
  "required": ["query"]
}`

// SearchResult is one entry of a web search response.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool issues a query to a configured search endpoint. With no
// endpoint configured it runs as a stub that always returns zero results —
// a workflow that depends on it degrades gracefully instead of failing to
// construct.
type WebSearchTool struct {
	endpoint   string
	apiKey     string
	maxResults int
	httpClient *http.Client
	schema     *compiledSchema
}

type WebSearchConfig struct {
	Endpoint   string // empty means stub mode
	APIKey     string
	MaxResults int
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewWebSearchTool(cfg WebSearchConfig) (*WebSearchTool, error) {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	schema, err := compileSchema("web-search", []byte(webSearchSchemaJSON))
	if err != nil {
		return nil, err
	}
	return &WebSearchTool{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		httpClient: client,
		schema:     schema,
	}, nil
}

func (t *WebSearchTool) Name() string { return "web-search" }

func (t *WebSearchTool) Describe() string {
	return "Issues a query to a configured web search endpoint and returns a bounded list of results."
}

func (t *WebSearchTool) Schema() []byte { return []byte(webSearchSchemaJSON) }

func (t *WebSearchTool) Invoke(ctx context.Context, arguments map[string]any) Result {
	start := time.Now()
	if sErr := t.schema.validate(t.Name(), arguments); sErr != nil {
		return Result{Tool: t.Name(), OK: false, Error: sErr, DurationMS: since(start)}
	}

	query, _ := arguments["query"].(string)
	if query == "" {
		return Result{Tool: t.Name(), OK: false,
			Error: errs.Validation("WEB_SEARCH_QUERY_REQUIRED", "query argument is required"), DurationMS: since(start)}
	}

	if t.endpoint == "" {
		empty, _ := json.Marshal([]SearchResult{})
		return Result{Tool: t.Name(), OK: true, Output: string(empty), DurationMS: since(start)}
	}

	results, err := t.search(ctx, query)
	if err != nil {
		return Result{Tool: t.Name(), OK: false,
			Error: errs.New(errs.CategoryFor(err), "WEB_SEARCH_FAILED", err.Error(), errs.Classify(err), errs.RecoveryUseFallback),
			DurationMS: since(start)}
	}
	out, _ := json.Marshal(results)
	return Result{Tool: t.Name(), OK: true, Output: string(out), DurationMS: since(start)}
}

func (t *WebSearchTool) search(ctx context.Context, query string) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	req.URL.RawQuery = q.Encode()
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	var results []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(results) > t.maxResults {
		results = results[:t.maxResults]
	}
	return results, nil
}
