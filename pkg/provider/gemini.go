package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/go-conductor/conductor/pkg/httpclient"
)

// GeminiProvider implements Provider over Google Gemini via the official
// google.golang.org/genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32

	// HTTPClient configures the underlying retry/backoff/rate-limit-aware
	// transport. Nil uses a default httpclient.Client tuned with
	// ParseGeminiHeaders.
	HTTPClient *httpclient.Client
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider: gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(httpclient.WithHeaderParser(httpclient.ParseGeminiHeaders))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, HTTPClient: cfg.HTTPClient.StandardClient()})
	if err != nil {
		return nil, fmt.Errorf("provider: create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *GeminiProvider) Info() Info {
	return Info{Name: NormalizeName("gemini"), Model: p.model}
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	config := p.buildConfig()

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return extractGeminiText(resp), nil
}

// GenerateStreaming satisfies StreamingProvider via GenerateContentStream.
func (p *GeminiProvider) GenerateStreaming(ctx context.Context, prompt string, sink TokenSink) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	config := p.buildConfig()

	var full string
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return "", fmt.Errorf("gemini generate content stream: %w", err)
		}
		chunk := extractGeminiText(resp)
		full += chunk
		sink(chunk)
	}
	return full, nil
}

// Embed satisfies EmbeddingProvider.
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return vectors[0], nil
}

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}
	resp, err := p.client.Models.EmbedContent(ctx, "text-embedding-004", contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		values := make([]float64, len(e.Values))
		for j, v := range e.Values {
			values[j] = float64(v)
		}
		out[i] = values
	}
	return out, nil
}

func (p *GeminiProvider) Dimensions() int { return 768 }

// GenerateWithImage satisfies VisionProvider.
func (p *GeminiProvider) GenerateWithImage(ctx context.Context, prompt string, imageRef ImageRef) (string, error) {
	return p.GenerateWithImages(ctx, prompt, []ImageRef{imageRef})
}

func (p *GeminiProvider) GenerateWithImages(ctx context.Context, prompt string, imageRefs []ImageRef) (string, error) {
	parts := []*genai.Part{{Text: prompt}}
	for _, ref := range imageRefs {
		if len(ref.Data) > 0 {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: ref.MimeType, Data: ref.Data},
			})
		}
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, p.buildConfig())
	if err != nil {
		return "", fmt.Errorf("gemini generate content with image: %w", err)
	}
	return extractGeminiText(resp), nil
}

func (p *GeminiProvider) SupportedImageFormats() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif"}
}

func (p *GeminiProvider) buildConfig() *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if p.temperature > 0 {
		config.Temperature = &p.temperature
	}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = p.maxTokens
	}
	return config
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	var out string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			out += part.Text
		}
	}
	return out
}
