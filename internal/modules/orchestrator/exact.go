package orchestrator

import (
	"context"
	"fmt"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/convergence"
	"github.com/aristath/phaselock/internal/modules/evolution"
	"github.com/aristath/phaselock/internal/modules/feedback"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/metrics"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/sampling"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
)

// traceTolerance is the largest trace drift a run tolerates.
const traceTolerance = 1e-6

type exactRunner struct {
	plan       Plan
	target     convergence.Target
	state      *state.ExactState
	stepper    *evolution.ExactStepper
	controller *feedback.Controller
	tracker    *metrics.ExactTracker
	sampler    *sampling.Sampler
	previous   *quantum.Operator
	history    []float64
	log        zerolog.Logger
}

func newExactRunner(plan Plan, log zerolog.Logger) (*exactRunner, error) {
	s, err := state.NewExactState(plan.Cost)
	if err != nil {
		return nil, err
	}
	units := s.Units()

	edges := plan.Edges
	if edges == nil {
		edges = ringEdges(units)
	}

	target := plan.Target
	if !target.Set {
		ground, err := hamiltonian.GroundEnergy(plan.Cost)
		if err != nil {
			return nil, err
		}
		target = convergence.At(ground)
	}

	stepper, err := evolution.NewExactStepper(units, plan.Regimes, log)
	if err != nil {
		return nil, err
	}
	controller, err := feedback.NewController(plan.Cost, edges, plan.Feedback, log)
	if err != nil {
		return nil, err
	}
	tracker, err := metrics.NewExactTracker(plan.Cost, log)
	if err != nil {
		return nil, err
	}
	sampler, err := sampling.New(plan.Shots, plan.RNG, plan.Mitigate)
	if err != nil {
		return nil, err
	}

	if plan.EntanglementNetwork && len(edges) > 0 {
		s.Set(quantum.ConjugateDiagonal(quantum.ControlledZPhases(units, edges), s.Density()))
		log.Debug().Int("edges", len(edges)).Msg("Entanglement network applied")
	}

	return &exactRunner{
		plan:       plan,
		target:     target,
		state:      s,
		stepper:    stepper,
		controller: controller,
		tracker:    tracker,
		sampler:    sampler,
		log:        log,
	}, nil
}

// ringEdges is the default problem graph: a ring, or one edge for two units.
func ringEdges(n int) [][2]int {
	switch {
	case n < 2:
		return nil
	case n == 2:
		return [][2]int{{0, 1}}
	}
	edges := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		a, b := i, (i+1)%n
		if a > b {
			a, b = b, a
		}
		edges = append(edges, [2]int{a, b})
	}
	return edges
}

func (r *exactRunner) units() int { return r.state.Units() }

func (r *exactRunner) verify() (domain.EvolutionLogEntry, error) {
	if err := r.check(); err != nil {
		return domain.EvolutionLogEntry{}, err
	}
	return r.measure(0)
}

func (r *exactRunner) iterate(ctx context.Context, iteration, _ int) (domain.EvolutionLogEntry, *domain.FeedbackEvent, error) {
	prev := r.state.Clone()
	if _, err := r.stepper.Step(ctx, r.state, r.target.Energy); err != nil {
		return domain.EvolutionLogEntry{}, nil, err
	}
	event, err := r.controller.Apply(prev, r.state, iteration)
	if err != nil {
		return domain.EvolutionLogEntry{}, nil, err
	}
	if err := r.check(); err != nil {
		return domain.EvolutionLogEntry{}, nil, err
	}
	entry, err := r.measure(iteration)
	return entry, event, err
}

func (r *exactRunner) check() error {
	if err := r.state.CheckValid(); err != nil {
		return err
	}
	return r.state.CheckTrace(traceTolerance)
}

// measure computes energy and metrics against the previous measurement and
// takes the snapshot for the log.
func (r *exactRunner) measure(iteration int) (domain.EvolutionLogEntry, error) {
	energy, err := r.state.Energy()
	if err != nil {
		return domain.EvolutionLogEntry{}, err
	}
	r.history = append(r.history, energy)
	m := r.tracker.Track(r.state, metrics.History{Previous: r.previous, Energies: r.history})
	r.previous = r.state.Density().Clone()
	return domain.EvolutionLogEntry{
		Iteration: iteration,
		Snapshot:  r.state.Snapshot(),
		Energy:    energy,
		Metrics:   m,
	}, nil
}

func (r *exactRunner) finish(report *Report) error {
	rho := r.state.Density()
	units := r.state.Units()

	report.UnitPhases = sampling.ExtractPhases(rho, units)
	report.PhaseMap = make([]float64, units)
	for i, p := range report.UnitPhases {
		report.PhaseMap[i] = p.Phase
	}

	idx := groundIndex(r.plan.Cost)
	report.Analytics = &Analytics{
		TargetIndex:            idx,
		TargetProbability:      sampling.TargetProbability(rho, idx),
		SNRImprovement:         capSNR(sampling.SNRImprovement(rho, idx, sampling.DefaultBaseline)),
		InterferenceVisibility: sampling.InterferenceVisibility(rho),
	}

	sample, err := r.sampler.Sample(r.state)
	if err != nil {
		return fmt.Errorf("failed to sample final state: %w", err)
	}
	report.Sample = sample
	return nil
}

// groundIndex is the basis state with the lowest diagonal cost.
func groundIndex(cost *quantum.Operator) int {
	diag := cost.Diag()
	best := 0
	for i, v := range diag {
		if v < diag[best] {
			best = i
		}
	}
	return best
}
