package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/go-conductor/conductor/pkg/httpclient"
)

// OpenAIProvider implements Provider over the OpenAI Chat Completions API.
// Because the wire format is OpenAI-compatible, this same provider backs
// any self-hosted or third-party endpoint that speaks the same API (LocalAI,
// vLLM, etc.) by way of BaseURL.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	BaseURL     string // empty uses api.openai.com; set for OpenAI-compatible endpoints

	// HTTPClient configures the underlying retry/backoff/rate-limit-aware
	// transport. Nil uses a default httpclient.Client tuned with
	// ParseOpenAIHeaders.
	HTTPClient *httpclient.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider: openai api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider: openai model is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient.StandardClient()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *OpenAIProvider) Info() Info {
	return Info{Name: NormalizeName("openai"), Model: p.model}
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(p.maxTokens)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completions: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed satisfies EmbeddingProvider for text-embedding-* models.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return vectors[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (p *OpenAIProvider) Dimensions() int {
	switch p.model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}
