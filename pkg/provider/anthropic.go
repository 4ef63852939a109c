package provider

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/go-conductor/conductor/pkg/httpclient"
)

// AnthropicProvider implements Provider over the Anthropic Messages API via
// the official SDK.
type AnthropicProvider struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	BaseURL     string // empty uses the SDK default

	// HTTPClient configures the underlying retry/backoff/rate-limit-aware
	// transport. Nil uses a default httpclient.Client tuned with
	// ParseAnthropicHeaders so 429 responses honor Anthropic's own
	// rate-limit headers.
	HTTPClient *httpclient.Client
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider: anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider: anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient.StandardClient()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:      sdk.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *AnthropicProvider) Info() Info {
	return Info{Name: NormalizeName("anthropic"), Model: p.model}
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if p.temperature > 0 {
		params.Temperature = sdk.Float(p.temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	return extractAnthropicText(msg), nil
}

// GenerateStreaming satisfies StreamingProvider.
func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, prompt string, sink TokenSink) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if p.temperature > 0 {
		params.Temperature = sdk.Float(p.temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	var full string
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if textDelta, ok := delta.Delta.AsAny().(sdk.TextDelta); ok {
				full += textDelta.Text
				sink(textDelta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return full, nil
}

func extractAnthropicText(msg *sdk.Message) string {
	var out string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			out += text.Text
		}
	}
	return out
}
