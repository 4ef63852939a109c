package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNameCollapsesAndLowercases(t *testing.T) {
	assert.Equal(t, "gpt-4o", NormalizeName("GPT 4o"))
	assert.Equal(t, "claude-3-5-sonnet", NormalizeName("Claude--3.5_Sonnet"))
	assert.Equal(t, "a", NormalizeName("-a-"))
}

func TestNormalizeNameFallsBackOnEmptyInput(t *testing.T) {
	name := NormalizeName("!!!")
	assert.Contains(t, name, "llm-provider-")
}

func TestCosineIdenticalVectorsIsOne(t *testing.T) {
	a := []float64{1, 2, 3}
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
}

func TestCosineOrthogonalVectorsIsZero(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
}

func TestCosineMismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float64{1, 2}, []float64{1}))
}

func TestFindMostSimilarPicksClosestCandidate(t *testing.T) {
	query := []float64{1, 0}
	candidates := [][]float64{
		{0, 1},
		{1, 0.01},
		{-1, 0},
	}
	assert.Equal(t, 1, FindMostSimilar(query, candidates))
}

func TestFindMostSimilarEmptyCandidatesReturnsNegativeOne(t *testing.T) {
	assert.Equal(t, -1, FindMostSimilar([]float64{1}, nil))
}
