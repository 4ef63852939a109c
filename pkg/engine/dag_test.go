package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conductor/conductor/pkg/planner"
)

func chainStages(n int) []planner.StageSpec {
	stages := make([]planner.StageSpec, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("s%d", i)
		var deps []string
		if i > 0 {
			deps = []string{fmt.Sprintf("s%d", i-1)}
		}
		stages[i] = planner.StageSpec{Name: name, PromptTemplate: "{{prompt}}", DependsOn: deps, AgentBinding: "a"}
	}
	return stages
}

func TestNewDAGAcceptsChainAtExactMaxDepth(t *testing.T) {
	opts := Options{MaxDependencyDepth: 20, MaxStages: 100}
	_, err := NewDAG(chainStages(20), opts)
	assert.NoError(t, err)
}

func TestNewDAGRejectsChainOneBeyondMaxDepth(t *testing.T) {
	opts := Options{MaxDependencyDepth: 20, MaxStages: 100}
	_, err := NewDAG(chainStages(21), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max depth")
}

// A long chain reached through a shared dependency (diamond shape) must
// still have its chain length measured from the source, not short-circuited
// because the shared dependency was already visited (and colored black)
// while resolving a sibling branch.
func TestNewDAGMeasuresDepthThroughSharedDependency(t *testing.T) {
	stages := []planner.StageSpec{
		{Name: "root", PromptTemplate: "{{prompt}}", AgentBinding: "a"},
		{Name: "branchA", PromptTemplate: "{{prompt}}", DependsOn: []string{"root"}, AgentBinding: "a"},
		{Name: "branchB", PromptTemplate: "{{prompt}}", DependsOn: []string{"root"}, AgentBinding: "a"},
	}
	// Extend branchB into a long chain past the depth limit; branchA is
	// visited first by planner order and would color "root" black before
	// branchB's chain is walked.
	for i := 0; i < 25; i++ {
		prev := "branchB"
		if i > 0 {
			prev = fmt.Sprintf("b%d", i-1)
		}
		stages = append(stages, planner.StageSpec{
			Name: fmt.Sprintf("b%d", i), PromptTemplate: "{{prompt}}",
			DependsOn: []string{prev}, AgentBinding: "a",
		})
	}

	opts := Options{MaxDependencyDepth: 20, MaxStages: 100}
	_, err := NewDAG(stages, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max depth")
}

func TestNewDAGDetectsCycle(t *testing.T) {
	stages := []planner.StageSpec{
		{Name: "a", PromptTemplate: "{{prompt}}", DependsOn: []string{"b"}, AgentBinding: "a"},
		{Name: "b", PromptTemplate: "{{prompt}}", DependsOn: []string{"a"}, AgentBinding: "a"},
	}
	_, err := NewDAG(stages, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewDAGRejectsUnknownDependency(t *testing.T) {
	stages := []planner.StageSpec{
		{Name: "a", PromptTemplate: "{{prompt}}", DependsOn: []string{"missing"}, AgentBinding: "a"},
	}
	_, err := NewDAG(stages, DefaultOptions())
	assert.Error(t, err)
}

func TestNewDAGRejectsTooManyStages(t *testing.T) {
	opts := Options{MaxDependencyDepth: 20, MaxStages: 3}
	_, err := NewDAG(chainStages(4), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeding the limit")
}

func TestNewDAGRejectsDuplicateStageName(t *testing.T) {
	stages := []planner.StageSpec{
		{Name: "a", PromptTemplate: "{{prompt}}", AgentBinding: "a"},
		{Name: "a", PromptTemplate: "{{prompt}}", AgentBinding: "a"},
	}
	_, err := NewDAG(stages, DefaultOptions())
	assert.Error(t, err)
}
