// Package runs persists and executes engine runs submitted through the API
// or the CLI.
package runs

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/convergence"
	"github.com/aristath/phaselock/internal/modules/evolution"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/topology"
)

// Cost operator kinds.
const (
	CostTargetPattern = "target_pattern"
	CostMaxCut        = "max_cut"
)

// Graph kinds.
const (
	GraphRing          = "ring"
	GraphCycle         = "cycle"
	GraphComplete      = "complete"
	GraphWattsStrogatz = "watts_strogatz"
	GraphAdjacency     = "adjacency"
)

// RegimeThresholds override the gap boundaries of the exact stepper.
type RegimeThresholds struct {
	FastGap   float64 `json:"fast_gap" yaml:"fast_gap"`
	MediumGap float64 `json:"medium_gap" yaml:"medium_gap"`
}

// GraphSpec describes a problem graph.
type GraphSpec struct {
	Kind      string      `json:"kind" yaml:"kind"`
	K         int         `json:"k,omitempty" yaml:"k,omitempty"`
	P         float64     `json:"p,omitempty" yaml:"p,omitempty"`
	Weight    float64     `json:"weight,omitempty" yaml:"weight,omitempty"`
	Adjacency [][]float64 `json:"adjacency,omitempty" yaml:"adjacency,omitempty"`
}

// ProblemDefinition is the user-facing description of a run. Zero fields take
// the configured defaults.
type ProblemDefinition struct {
	Backend       domain.Backend `json:"backend" yaml:"backend"`
	Units         int            `json:"units" yaml:"units"`
	Cost          string         `json:"cost,omitempty" yaml:"cost,omitempty"`
	TargetPattern string         `json:"target_pattern,omitempty" yaml:"target_pattern,omitempty"`
	Adjacency     [][]float64    `json:"adjacency,omitempty" yaml:"adjacency,omitempty"`
	Graph         *GraphSpec     `json:"graph,omitempty" yaml:"graph,omitempty"`

	TargetEnergy         *float64          `json:"target_energy,omitempty" yaml:"target_energy,omitempty"`
	MaxIterations        int               `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Tolerance            float64           `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	RefinementIterations int               `json:"refinement_iterations,omitempty" yaml:"refinement_iterations,omitempty"`
	LearningRate         float64           `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
	ScoreThreshold       float64           `json:"score_threshold,omitempty" yaml:"score_threshold,omitempty"`
	Regimes              *RegimeThresholds `json:"regimes,omitempty" yaml:"regimes,omitempty"`
	Shots                int               `json:"shots,omitempty" yaml:"shots,omitempty"`
	Seed                 *uint64           `json:"seed,omitempty" yaml:"seed,omitempty"`
	RefinementPolicy     string            `json:"refinement_policy,omitempty" yaml:"refinement_policy,omitempty"`
	Init                 string            `json:"init,omitempty" yaml:"init,omitempty"`
}

// Defaults are the engine settings applied to unset problem fields.
type Defaults struct {
	MaxIterations        int
	Tolerance            float64
	RefinementIterations int
	ScoreThreshold       float64
	LearningRate         float64
	Shots                int
	Seed                 uint64
}

// DefaultProblem is the problem run when none is given: a 56-unit mean-field
// small-world network.
func DefaultProblem() ProblemDefinition {
	seed := uint64(42)
	return ProblemDefinition{
		Backend: domain.BackendMeanField,
		Units:   56,
		Graph:   &GraphSpec{Kind: GraphWattsStrogatz, K: 6, P: 0.3},
		Seed:    &seed,
	}
}

// Plan converts the definition into an engine plan.
func (p ProblemDefinition) Plan(d Defaults) (orchestrator.Plan, error) {
	seed := d.Seed
	if p.Seed != nil {
		seed = *p.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var plan orchestrator.Plan
	switch p.Backend {
	case domain.BackendExact:
		cost, edges, err := p.exactCost()
		if err != nil {
			return plan, err
		}
		plan = orchestrator.NewExactPlan(cost, edges)
	case domain.BackendMeanField:
		g, err := p.graph(rng)
		if err != nil {
			return plan, err
		}
		plan = orchestrator.NewMeanFieldPlan(g)
		if p.Init != "" {
			plan.Init = orchestrator.InitMode(p.Init)
		}
	default:
		return plan, fmt.Errorf("%w: unknown backend %q", domain.ErrInvalidProblemSpec, p.Backend)
	}

	plan.RNG = rng
	plan.Seed = seed
	plan.MaxIterations = firstInt(p.MaxIterations, d.MaxIterations)
	plan.RefinementIterations = firstInt(p.RefinementIterations, d.RefinementIterations)
	plan.Tolerance = firstFloat(p.Tolerance, d.Tolerance)
	plan.ScoreThreshold = firstFloat(p.ScoreThreshold, d.ScoreThreshold)
	plan.LearningRate = firstFloat(p.LearningRate, d.LearningRate)
	plan.Shots = firstInt(p.Shots, d.Shots)
	plan.Policy = orchestrator.RefinementPolicy(p.RefinementPolicy)
	switch plan.Policy {
	case "", orchestrator.PolicyGated, orchestrator.PolicyAlways:
	default:
		return plan, fmt.Errorf("%w: unknown refinement policy %q", domain.ErrInvalidProblemSpec, p.RefinementPolicy)
	}
	if p.TargetEnergy != nil {
		plan.Target = convergence.At(*p.TargetEnergy)
	}
	if p.Regimes != nil {
		r := evolution.DefaultRegimes()
		r.FastGap, r.MediumGap = p.Regimes.FastGap, p.Regimes.MediumGap
		if err := r.Validate(); err != nil {
			return plan, err
		}
		plan.Regimes = r
	}
	return plan, nil
}

// exactCost builds the cost operator and the problem graph edges.
func (p ProblemDefinition) exactCost() (*quantum.Operator, [][2]int, error) {
	kind := p.Cost
	if kind == "" {
		kind = CostTargetPattern
		if p.Adjacency != nil {
			kind = CostMaxCut
		}
	}

	switch kind {
	case CostTargetPattern:
		var opts []hamiltonian.PatternOption
		if p.Units > 0 {
			opts = append(opts, hamiltonian.WithUnits(p.Units))
		}
		cost, err := hamiltonian.TargetPattern(p.TargetPattern, opts...)
		if err != nil {
			return nil, nil, err
		}
		var edges [][2]int
		if p.Graph != nil {
			g, err := p.graph(nil)
			if err != nil {
				return nil, nil, err
			}
			edges = g.Edges()
		}
		return cost, edges, nil
	case CostMaxCut:
		if p.Adjacency == nil {
			return nil, nil, fmt.Errorf("%w: max_cut needs an adjacency matrix", domain.ErrInvalidProblemSpec)
		}
		cost, err := hamiltonian.MaxCut(p.Adjacency)
		if err != nil {
			return nil, nil, err
		}
		g, err := topology.FromAdjacency(p.Adjacency)
		if err != nil {
			return nil, nil, err
		}
		return cost, g.Edges(), nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown cost %q", domain.ErrInvalidProblemSpec, kind)
	}
}

// graph builds the coupling graph. rng is only needed for Watts-Strogatz.
func (p ProblemDefinition) graph(rng *rand.Rand) (*topology.Graph, error) {
	spec := p.Graph
	if spec == nil {
		if p.Adjacency != nil {
			return topology.FromAdjacency(p.Adjacency)
		}
		spec = &GraphSpec{Kind: GraphRing}
	}

	n := p.Units
	if n == 0 {
		n = len(p.TargetPattern)
	}
	switch spec.Kind {
	case GraphRing, "":
		return topology.Ring(n)
	case GraphCycle:
		return topology.Cycle(n)
	case GraphComplete:
		w := spec.Weight
		if w == 0 {
			w = 1
		}
		return topology.Complete(n, w)
	case GraphWattsStrogatz:
		if rng == nil {
			return nil, fmt.Errorf("%w: watts_strogatz graphs are mean-field only", domain.ErrInvalidProblemSpec)
		}
		return topology.WattsStrogatz(n, spec.K, spec.P, rng)
	case GraphAdjacency:
		return topology.FromAdjacency(spec.Adjacency)
	default:
		return nil, fmt.Errorf("%w: unknown graph kind %q", domain.ErrInvalidProblemSpec, spec.Kind)
	}
}

func firstInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func firstFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}
