package orchestrator

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/evolution"
	"github.com/aristath/phaselock/internal/modules/metrics"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/aristath/phaselock/internal/modules/topology"
	"github.com/rs/zerolog"
)

// objectiveWeight scales the metric sum in the mean-field objective score.
const objectiveWeight = 0.1

type meanFieldRunner struct {
	state     *state.MeanFieldState
	stepper   *evolution.MeanFieldStepper
	tracker   *metrics.MeanFieldTracker
	objective []float64
	log       zerolog.Logger
}

func newMeanFieldRunner(plan Plan, workers int, log zerolog.Logger, report *Report) (*meanFieldRunner, error) {
	coupling := plan.Graph.Coupling()

	var (
		s   *state.MeanFieldState
		err error
	)
	switch {
	case plan.Phases != nil:
		s, err = state.NewMeanFieldState(coupling, plan.Phases)
		report.HotStart = &HotStartInfo{Mode: InitSupplied}
	case plan.Init == InitRandom:
		s, err = state.NewRandomMeanFieldState(coupling, plan.RNG)
		report.HotStart = &HotStartInfo{Mode: InitRandom}
	default:
		var opts []topology.Option
		if plan.RandomFallback {
			opts = append(opts, topology.WithRandomFallback(plan.RNG))
		}
		if plan.StrictDegeneracy {
			opts = append(opts, topology.WithStrictDegeneracy())
		}
		var hs *topology.HotStart
		hs, err = topology.NewInitializer(log, opts...).HotStart(plan.Graph)
		if err == nil {
			s = hs.State
			report.HotStart = &HotStartInfo{
				Mode:                  InitHotStart,
				Degenerate:            hs.Degenerate,
				AlgebraicConnectivity: hs.AlgebraicConnectivity,
			}
		}
	}
	if err != nil {
		return nil, err
	}

	stepper, err := evolution.NewMeanFieldStepper(evolution.MeanFieldConfig{
		LearningRate: plan.LearningRate,
		Workers:      workers,
	}, log)
	if err != nil {
		return nil, err
	}

	return &meanFieldRunner{
		state:   s,
		stepper: stepper,
		tracker: metrics.NewMeanFieldTracker(log),
		log:     log,
	}, nil
}

func (r *meanFieldRunner) units() int { return r.state.Units() }

func (r *meanFieldRunner) verify() (domain.EvolutionLogEntry, error) {
	return r.measure(0)
}

func (r *meanFieldRunner) iterate(ctx context.Context, iteration, budget int) (domain.EvolutionLogEntry, *domain.FeedbackEvent, error) {
	if _, err := r.stepper.Step(ctx, r.state, iteration-1, budget); err != nil {
		return domain.EvolutionLogEntry{}, nil, err
	}
	gradientSweepSeconds.Observe(r.stepper.LastSweep.Seconds())

	for i, p := range r.state.Phases() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return domain.EvolutionLogEntry{}, nil, fmt.Errorf("%w: phase %d is %v", domain.ErrNumericInstability, i, p)
		}
	}

	entry, err := r.measure(iteration)
	if err != nil {
		return domain.EvolutionLogEntry{}, nil, err
	}
	r.log.Debug().
		Int("iteration", iteration).
		Float64("objective", r.objective[len(r.objective)-1]).
		Msg("Objective")
	return entry, nil, nil
}

func (r *meanFieldRunner) measure(iteration int) (domain.EvolutionLogEntry, error) {
	energy, err := r.state.Energy()
	if err != nil {
		return domain.EvolutionLogEntry{}, err
	}
	if math.IsNaN(energy) || math.IsInf(energy, 0) {
		return domain.EvolutionLogEntry{}, fmt.Errorf("%w: energy is %v", domain.ErrNumericInstability, energy)
	}
	m, err := r.tracker.Track(r.state)
	if err != nil {
		return domain.EvolutionLogEntry{}, err
	}
	r.objective = append(r.objective, Objective(energy, m))
	return domain.EvolutionLogEntry{
		Iteration: iteration,
		Snapshot:  r.state.Snapshot(),
		Energy:    energy,
		Metrics:   m,
	}, nil
}

func (r *meanFieldRunner) finish(report *Report) error {
	report.PhaseMap = r.state.Phases()
	report.Objective = append([]float64(nil), r.objective...)
	return nil
}

// Objective is the mean-field score −E + 0.1·ΣSECURE.
func Objective(energy float64, m domain.MetricVector) float64 {
	sum := 0.0
	for _, v := range m.Values() {
		sum += v
	}
	return -energy + objectiveWeight*sum
}
