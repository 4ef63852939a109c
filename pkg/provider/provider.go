// Package provider implements the Provider Core: a uniform generate(prompt)
// contract over remote model endpoints, with optional capability tags for
// streaming, embedding, and vision. Concrete providers (Anthropic, OpenAI,
// Gemini, Bedrock) live alongside this file; the Resilience Layer
// (pkg/resilience) wraps any Provider transparently.
package provider

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"strings"
)

// Info describes a provider instance for routing and metrics.
type Info struct {
	Name  string
	Model string
}

// Provider is the minimal contract every concrete provider satisfies.
type Provider interface {
	Info() Info
	Generate(ctx context.Context, prompt string) (string, error)
}

// TokenSink receives partial tokens, in order, during a streaming
// generation. Calls are sequential within one GenerateStreaming invocation.
type TokenSink func(token string)

// StreamingProvider is an optional capability: a provider may implement it
// in addition to Provider.
type StreamingProvider interface {
	GenerateStreaming(ctx context.Context, prompt string, sink TokenSink) (string, error)
}

// EmbeddingProvider is an optional capability for providers that can embed
// text into vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}

// VisionProvider is an optional capability for providers that accept image
// input alongside a text prompt.
type VisionProvider interface {
	GenerateWithImage(ctx context.Context, prompt string, imageRef ImageRef) (string, error)
	GenerateWithImages(ctx context.Context, prompt string, imageRefs []ImageRef) (string, error)
	SupportedImageFormats() []string
}

// ImageRef is an opaque reference to image data — a file path, URL, or raw
// bytes with a MIME type — the concrete provider decides how to resolve it.
type ImageRef struct {
	MimeType string
	URL      string
	Data     []byte
}

// Cosine returns the cosine similarity between two equal-length vectors. A
// pure helper, not tied to any one EmbeddingProvider implementation.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FindMostSimilar returns the index of the candidate vector most similar to
// query by cosine similarity, or -1 if candidates is empty.
func FindMostSimilar(query []float64, candidates [][]float64) int {
	best := -1
	bestScore := -2.0 // cosine similarity is in [-1, 1]
	for i, c := range candidates {
		score := Cosine(query, c)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

var nonAlphanumericRun = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeName lowercases a provider/model name, collapses runs of
// non-alphanumeric characters to a single "-", and trims leading/trailing
// "-". An empty result falls back to a generated "llm-provider-<rand>" id.
func NormalizeName(name string) string {
	lower := strings.ToLower(name)
	collapsed := nonAlphanumericRun.ReplaceAllString(lower, "-")
	trimmed := strings.Trim(collapsed, "-")
	if trimmed == "" {
		return generatedName()
	}
	return trimmed
}

func generatedName() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return "llm-provider-" + string(b)
}
