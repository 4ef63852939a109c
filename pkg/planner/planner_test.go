package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-conductor/conductor/pkg/provider"
)

type scriptedProvider struct {
	responses []string
	i         int
}

func (p *scriptedProvider) Info() provider.Info { return provider.Info{Name: "scripted"} }

func (p *scriptedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	out := p.responses[p.i]
	if p.i < len(p.responses)-1 {
		p.i++
	}
	return out, nil
}

func TestPlanParsesWellFormedResponse(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`{"stages":[{"name":"fetch","prompt_template":"{{prompt}}","depends_on":[],"agent_binding":"researcher"},` +
			`{"name":"summarize","prompt_template":"{{memory}}","depends_on":["fetch"],"agent_binding":"writer"}]}`,
	}}

	stages, err := Plan(context.Background(), p, "research and summarize X")

	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "fetch", stages[0].Name)
	assert.Equal(t, []string{"fetch"}, stages[1].DependsOn)
}

func TestPlanParsesFencedResponse(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"```json\n" + `{"stages":[{"name":"only","prompt_template":"{{prompt}}","depends_on":[],"agent_binding":"a"}]}` + "\n```",
	}}

	stages, err := Plan(context.Background(), p, "goal")
	require.NoError(t, err)
	require.Len(t, stages, 1)
}

func TestPlanRetriesOnceOnParseFailureThenSucceeds(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"not json at all",
		`{"stages":[{"name":"a","prompt_template":"{{prompt}}","depends_on":[],"agent_binding":"x"}]}`,
	}}

	stages, err := Plan(context.Background(), p, "goal")
	require.NoError(t, err)
	require.Len(t, stages, 1)
}

func TestPlanFailsWithInvalidPlanAfterSecondFailure(t *testing.T) {
	p := &scriptedProvider{responses: []string{"garbage", "still garbage"}}

	_, err := Plan(context.Background(), p, "goal")
	require.Error(t, err)
}

func TestPlanAcceptsEmptyStageListFromProvider(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"stages":[]}`}}

	stages, err := Plan(context.Background(), p, "goal")
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestPlanOnEmptyGoalYieldsZeroStagesWithoutCallingProvider(t *testing.T) {
	p := &scriptedProvider{responses: nil}

	stages, err := Plan(context.Background(), p, "   ")
	require.NoError(t, err)
	assert.Empty(t, stages)
	assert.Equal(t, 0, p.i, "provider must not be consulted for an empty goal")
}
