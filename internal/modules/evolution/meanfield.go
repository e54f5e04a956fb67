package evolution

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLearningRate is the initial step size of the gradient descent.
	DefaultLearningRate = 0.1
	// DefaultDelta is the central-difference offset.
	DefaultDelta = 0.01
)

// MeanFieldConfig tunes the gradient step.
type MeanFieldConfig struct {
	LearningRate float64
	Delta        float64
	// Workers bounds the parallel energy evaluations. Zero means GOMAXPROCS.
	Workers int
}

// MeanFieldStepper moves the phase vector down a central-difference estimate
// of the energy gradient.
type MeanFieldStepper struct {
	cfg MeanFieldConfig
	log zerolog.Logger

	// LastSweep is the wall time of the most recent gradient sweep.
	LastSweep time.Duration
}

// NewMeanFieldStepper fills zero fields of cfg with defaults.
func NewMeanFieldStepper(cfg MeanFieldConfig, log zerolog.Logger) (*MeanFieldStepper, error) {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.Delta == 0 {
		cfg.Delta = DefaultDelta
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.LearningRate < 0 || cfg.Delta < 0 {
		return nil, fmt.Errorf("%w: learning rate %v and delta %v must be positive", domain.ErrInvalidProblemSpec, cfg.LearningRate, cfg.Delta)
	}
	return &MeanFieldStepper{
		cfg: cfg,
		log: log.With().Str("component", "mean_field_stepper").Logger(),
	}, nil
}

// LearningRateAt returns the linearly decayed step size for iteration of a
// budget of iterations.
func (st *MeanFieldStepper) LearningRateAt(iteration, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	lr := st.cfg.LearningRate * (1 - float64(iteration)/float64(budget))
	return math.Max(lr, 0)
}

// Gradient estimates ∂E/∂θ_i for every coordinate. The 2n energy
// evaluations run concurrently; each worker writes only its own slot.
func (st *MeanFieldStepper) Gradient(ctx context.Context, s *state.MeanFieldState) ([]float64, error) {
	base := s.Phases()
	n := len(base)
	grad := make([]float64, n)
	delta := st.cfg.Delta

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(st.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trial := make([]float64, n)
			copy(trial, base)

			trial[i] = base[i] + delta
			plus, err := s.EnergyAt(trial)
			if err != nil {
				return err
			}
			trial[i] = base[i] - delta
			minus, err := s.EnergyAt(trial)
			if err != nil {
				return err
			}

			gi := (plus - minus) / (2 * delta)
			if math.IsNaN(gi) || math.IsInf(gi, 0) {
				return fmt.Errorf("%w: gradient component %d is %v", domain.ErrNumericInstability, i, gi)
			}
			grad[i] = gi
			return nil
		})
	}
	err := g.Wait()
	st.LastSweep = time.Since(start)
	if err != nil {
		return nil, err
	}
	return grad, nil
}

// Step applies θ ← wrap(θ − lr·∇E) for every coordinate at once, using
// gradients taken at the pre-update phases.
func (st *MeanFieldStepper) Step(ctx context.Context, s *state.MeanFieldState, iteration, budget int) (StepInfo, error) {
	before, err := s.Energy()
	if err != nil {
		return StepInfo{}, err
	}
	grad, err := st.Gradient(ctx, s)
	if err != nil {
		return StepInfo{}, err
	}

	lr := st.LearningRateAt(iteration, budget)
	phases := s.Phases()
	norm := 0.0
	for i, gi := range grad {
		phases[i] -= lr * gi
		norm += gi * gi
	}
	if err := s.SetPhases(phases); err != nil {
		return StepInfo{}, err
	}

	after, err := s.Energy()
	if err != nil {
		return StepInfo{}, err
	}

	st.log.Trace().
		Int("iteration", iteration).
		Float64("learning_rate", lr).
		Dur("sweep", st.LastSweep).
		Msg("Mean-field step")

	return StepInfo{
		LearningRate: lr,
		GradientNorm: math.Sqrt(norm),
		EnergyBefore: before,
		EnergyAfter:  after,
	}, nil
}
