package orchestrator

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/convergence"
	"github.com/aristath/phaselock/internal/modules/evolution"
	"github.com/aristath/phaselock/internal/modules/feedback"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/sampling"
	"github.com/aristath/phaselock/internal/modules/topology"
)

// RefinementPolicy decides whether the verification score can skip
// refinement.
type RefinementPolicy string

const (
	// PolicyGated refines only when the verification score is below the
	// threshold.
	PolicyGated RefinementPolicy = "gated"
	// PolicyAlways refines regardless of the verification score.
	PolicyAlways RefinementPolicy = "always"
)

// InitMode selects how a mean-field run gets its first phases.
type InitMode string

const (
	InitHotStart InitMode = "hot_start"
	InitRandom   InitMode = "random"
	// InitSupplied is reported when the plan carries its own phases.
	InitSupplied InitMode = "supplied"
)

// Defaults applied by Plan.withDefaults.
const (
	DefaultMaxIterations        = 100
	DefaultRefinementIterations = 20
	DefaultScoreThreshold       = 80.0
)

// Hooks are optional callbacks fired while a run progresses.
type Hooks struct {
	OnIteration func(runID string, entry domain.EvolutionLogEntry)
	OnFeedback  func(runID string, event domain.FeedbackEvent)
}

// Plan describes one run.
type Plan struct {
	RunID   string
	Backend domain.Backend

	// Exact backend: the cost operator and the problem graph used by the
	// entanglement network and the boost.
	Cost                *quantum.Operator
	Edges               [][2]int
	EntanglementNetwork bool

	// Mean-field backend: the coupling graph and an optional supplied start.
	Graph            *topology.Graph
	Init             InitMode
	Phases           []float64
	RandomFallback   bool
	StrictDegeneracy bool

	Target               convergence.Target
	MaxIterations        int
	RefinementIterations int
	Tolerance            float64
	ScoreThreshold       float64
	// Policy defaults to Always for exact runs and Gated for mean-field runs.
	Policy RefinementPolicy

	Regimes      evolution.Regimes
	LearningRate float64
	Feedback     feedback.Config

	Shots    int
	Mitigate sampling.ReadoutMitigator

	// RNG drives random init, fallback phases and sampling. When nil one is
	// seeded from Seed.
	RNG  *rand.Rand
	Seed uint64

	Hooks Hooks
}

// NewExactPlan returns a plan with the exact backend defaults.
func NewExactPlan(cost *quantum.Operator, edges [][2]int) Plan {
	return Plan{
		Backend:             domain.BackendExact,
		Cost:                cost,
		Edges:               edges,
		EntanglementNetwork: true,
	}
}

// NewMeanFieldPlan returns a plan with the mean-field defaults.
func NewMeanFieldPlan(g *topology.Graph) Plan {
	return Plan{
		Backend: domain.BackendMeanField,
		Graph:   g,
		Init:    InitHotStart,
	}
}

// withDefaults fills every zero field.
func (p Plan) withDefaults() Plan {
	if p.MaxIterations == 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.RefinementIterations == 0 {
		p.RefinementIterations = DefaultRefinementIterations
	}
	if p.Tolerance == 0 {
		p.Tolerance = convergence.DefaultTolerance
	}
	if p.ScoreThreshold == 0 {
		p.ScoreThreshold = DefaultScoreThreshold
	}
	if p.Policy == "" {
		if p.Backend == domain.BackendExact {
			p.Policy = PolicyAlways
		} else {
			p.Policy = PolicyGated
		}
	}
	if p.Regimes == (evolution.Regimes{}) {
		p.Regimes = evolution.DefaultRegimes()
	}
	if p.LearningRate == 0 {
		p.LearningRate = evolution.DefaultLearningRate
	}
	if p.Feedback == (feedback.Config{}) {
		p.Feedback = feedback.DefaultConfig()
	}
	if p.Shots == 0 {
		p.Shots = sampling.DefaultShots
	}
	if p.Init == "" {
		p.Init = InitHotStart
	}
	if p.RNG == nil {
		p.RNG = rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	}
	return p
}

// budget is the refinement length of the plan's backend.
func (p Plan) budget() int {
	if p.Backend == domain.BackendMeanField {
		return p.RefinementIterations
	}
	return p.MaxIterations
}

func (p Plan) validate() error {
	switch p.Backend {
	case domain.BackendExact:
		if p.Cost == nil {
			return fmt.Errorf("%w: exact run without a cost operator", domain.ErrInvalidProblemSpec)
		}
	case domain.BackendMeanField:
		if p.Graph == nil {
			return fmt.Errorf("%w: mean-field run without a coupling graph", domain.ErrInvalidProblemSpec)
		}
		if p.Init != InitHotStart && p.Init != InitRandom {
			return fmt.Errorf("%w: unknown init mode %q", domain.ErrInvalidProblemSpec, p.Init)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", domain.ErrInvalidProblemSpec, p.Backend)
	}
	if p.Policy != PolicyGated && p.Policy != PolicyAlways {
		return fmt.Errorf("%w: unknown refinement policy %q", domain.ErrInvalidProblemSpec, p.Policy)
	}
	if p.ScoreThreshold < 0 || p.ScoreThreshold > 100 {
		return fmt.Errorf("%w: score threshold %v outside [0,100]", domain.ErrInvalidProblemSpec, p.ScoreThreshold)
	}
	if p.MaxIterations < 0 || p.RefinementIterations < 0 {
		return fmt.Errorf("%w: iteration budgets must be positive", domain.ErrInvalidProblemSpec)
	}
	return nil
}
