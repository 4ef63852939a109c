package engine

import (
	"fmt"
	"regexp"

	"github.com/go-conductor/conductor/pkg/errs"
	"github.com/go-conductor/conductor/pkg/planner"
)

// stageNamePattern is the External Interfaces naming rule: stage names must
// match [A-Za-z0-9_-]+ with length 1..128.
var stageNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

const (
	defaultMaxDependencyDepth = 20
	defaultMaxStages          = 100
)

// node is one DAG vertex: a stage spec plus its resolved dependent set
// (built once at construction, since it's read on every completion to find
// newly-ready stages).
type node struct {
	spec       planner.StageSpec
	dependents []string
}

// DAG is a validated, immutable stage graph. It never mutates after
// NewDAG returns successfully.
type DAG struct {
	nodes map[string]*node
	names []string // planner order, preserved for stable same-batch dispatch
}

type Options struct {
	MaxDependencyDepth int
	MaxStages          int
}

func DefaultOptions() Options {
	return Options{MaxDependencyDepth: defaultMaxDependencyDepth, MaxStages: defaultMaxStages}
}

// NewDAG validates stages and builds the dependency graph. It rejects
// invalid names, duplicate names, unknown dependsOn references, cycles, and
// graphs exceeding the configured depth/size limits.
func NewDAG(stages []planner.StageSpec, opts Options) (*DAG, error) {
	if opts.MaxDependencyDepth <= 0 {
		opts.MaxDependencyDepth = defaultMaxDependencyDepth
	}
	if opts.MaxStages <= 0 {
		opts.MaxStages = defaultMaxStages
	}
	if len(stages) > opts.MaxStages {
		return nil, errs.ConfigError(errs.CodeMaxStagesExceeded,
			fmt.Sprintf("workflow has %d stages, exceeding the limit of %d", len(stages), opts.MaxStages))
	}

	d := &DAG{nodes: make(map[string]*node, len(stages)), names: make([]string, 0, len(stages))}

	for _, s := range stages {
		if !stageNamePattern.MatchString(s.Name) {
			return nil, errs.Validation("INVALID_STAGE_NAME", fmt.Sprintf("stage name %q must match [A-Za-z0-9_-]+ and be 1..128 chars", s.Name))
		}
		if _, exists := d.nodes[s.Name]; exists {
			return nil, errs.ConfigError(errs.CodeDuplicateStage, fmt.Sprintf("duplicate stage name %q", s.Name))
		}
		d.nodes[s.Name] = &node{spec: s}
		d.names = append(d.names, s.Name)
	}

	for _, s := range stages {
		for _, dep := range s.DependsOn {
			depNode, ok := d.nodes[dep]
			if !ok {
				return nil, errs.ConfigError(errs.CodeInvalidPlan, fmt.Sprintf("stage %q depends on unknown stage %q", s.Name, dep))
			}
			depNode.dependents = append(depNode.dependents, s.Name)
		}
	}

	if err := d.detectCycles(opts.MaxDependencyDepth); err != nil {
		return nil, err
	}

	return d, nil
}

// detectCycles runs a DFS from every node, rejecting cycles and rejecting
// any node whose longest dependency chain (counted in stages, a source
// stage with no dependencies counting as 1) exceeds maxDepth. The longest
// chain to a node is memoized in chainLen rather than gated on DFS color
// alone: since a dependency shared by multiple dependents turns black after
// its first visit, gating recursion on color would stop the walk from ever
// reaching it a second time and its contribution to a deeper dependent's
// chain length would be lost.
func (d *DAG) detectCycles(maxDepth int) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.names))
	chainLen := make(map[string]int, len(d.names))

	var visit func(name string) (int, error)
	visit = func(name string) (int, error) {
		if color[name] == black {
			return chainLen[name], nil
		}
		color[name] = gray

		longest := 0
		for _, dep := range d.nodes[name].spec.DependsOn {
			if color[dep] == gray {
				return 0, errs.ConfigError(errs.CodeCycleDetected, fmt.Sprintf("cycle detected involving stage %q", dep))
			}
			depLen, err := visit(dep)
			if err != nil {
				return 0, err
			}
			if depLen > longest {
				longest = depLen
			}
		}

		length := longest + 1
		if length > maxDepth {
			return 0, errs.ConfigError(errs.CodeMaxDependencyDepth,
				fmt.Sprintf("dependency chain through %q exceeds max depth %d", name, maxDepth))
		}
		color[name] = black
		chainLen[name] = length
		return length, nil
	}

	for _, name := range d.names {
		if color[name] == white {
			if _, err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *DAG) Names() []string { return d.names }

func (d *DAG) Spec(name string) planner.StageSpec { return d.nodes[name].spec }

func (d *DAG) Dependents(name string) []string { return d.nodes[name].dependents }

func (d *DAG) DependsOn(name string) []string { return d.nodes[name].spec.DependsOn }
