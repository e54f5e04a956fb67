// Package evolution advances a state by one iteration: a gap-scheduled
// unitary step for the exact backend and a finite-difference gradient step
// for the mean-field backend.
package evolution

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
)

// Regime is one step schedule: time step and driver share of the combined
// operator.
type Regime struct {
	Name         string  `json:"name"`
	Dt           float64 `json:"dt"`
	DriverWeight float64 `json:"driver_weight"`
}

// Regimes selects a schedule from the current energy gap.
type Regimes struct {
	// FastGap is the gap above which the fast regime applies.
	FastGap float64
	// MediumGap is the gap above which the medium regime applies.
	MediumGap float64

	Fast   Regime
	Medium Regime
	Slow   Regime
}

// DefaultRegimes returns the standard three-regime schedule.
func DefaultRegimes() Regimes {
	return Regimes{
		FastGap:   1.0,
		MediumGap: 0.1,
		Fast:      Regime{Name: "fast", Dt: 0.1, DriverWeight: 0.7},
		Medium:    Regime{Name: "medium", Dt: 0.05, DriverWeight: 0.5},
		Slow:      Regime{Name: "slow", Dt: 0.02, DriverWeight: 0.3},
	}
}

// Select returns the regime for gap.
func (r Regimes) Select(gap float64) Regime {
	switch {
	case gap > r.FastGap:
		return r.Fast
	case gap > r.MediumGap:
		return r.Medium
	default:
		return r.Slow
	}
}

// Validate checks the thresholds are ordered and every weight is a mixing
// weight.
func (r Regimes) Validate() error {
	if r.MediumGap < 0 || r.FastGap < r.MediumGap {
		return fmt.Errorf("%w: regime gaps must satisfy 0 <= medium (%v) <= fast (%v)", domain.ErrInvalidProblemSpec, r.MediumGap, r.FastGap)
	}
	for _, reg := range []Regime{r.Fast, r.Medium, r.Slow} {
		if reg.Dt <= 0 || reg.DriverWeight < 0 || reg.DriverWeight > 1 {
			return fmt.Errorf("%w: regime %q has dt %v and driver weight %v", domain.ErrInvalidProblemSpec, reg.Name, reg.Dt, reg.DriverWeight)
		}
	}
	return nil
}

// StepInfo describes one completed step.
type StepInfo struct {
	Regime       string  `json:"regime,omitempty"`
	Dt           float64 `json:"dt,omitempty"`
	DriverWeight float64 `json:"driver_weight,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	GradientNorm float64 `json:"gradient_norm,omitempty"`
	EnergyBefore float64 `json:"energy_before"`
	EnergyAfter  float64 `json:"energy_after"`
}

// ExactStepper evolves a density matrix under a mix of the cost operator and
// the transverse driver.
type ExactStepper struct {
	regimes Regimes
	driver  *quantum.Operator
	units   int
	log     zerolog.Logger
}

// NewExactStepper builds the driver for units once and keeps it for every
// step.
func NewExactStepper(units int, regimes Regimes, log zerolog.Logger) (*ExactStepper, error) {
	if err := regimes.Validate(); err != nil {
		return nil, err
	}
	driver, err := hamiltonian.Driver(units)
	if err != nil {
		return nil, err
	}
	return &ExactStepper{
		regimes: regimes,
		driver:  driver,
		units:   units,
		log:     log.With().Str("component", "exact_stepper").Logger(),
	}, nil
}

// Step applies ρ ← UρU† with U = exp(−i·dt·(w·H_driver + (1−w)·H_cost)),
// dt and w chosen from the distance to target.
func (st *ExactStepper) Step(ctx context.Context, s *state.ExactState, target float64) (StepInfo, error) {
	if err := ctx.Err(); err != nil {
		return StepInfo{}, err
	}
	if s.Units() != st.units {
		return StepInfo{}, fmt.Errorf("%w: stepper built for %d units, state has %d", domain.ErrInvalidProblemSpec, st.units, s.Units())
	}

	before, err := s.Energy()
	if err != nil {
		return StepInfo{}, err
	}
	regime := st.regimes.Select(math.Abs(before - target))

	h := quantum.Combine(regime.DriverWeight, st.driver, 1-regime.DriverWeight, s.Cost())
	u := quantum.EvolutionUnitary(h, regime.Dt)
	next := quantum.Conjugate(u, s.Density())
	if !next.IsFinite() {
		return StepInfo{}, fmt.Errorf("%w: evolution produced non-finite entries", domain.ErrNumericInstability)
	}
	s.Set(next)

	after, err := s.Energy()
	if err != nil {
		return StepInfo{}, err
	}

	st.log.Trace().
		Str("regime", regime.Name).
		Float64("energy_before", before).
		Float64("energy_after", after).
		Msg("Exact step")

	return StepInfo{
		Regime:       regime.Name,
		Dt:           regime.Dt,
		DriverWeight: regime.DriverWeight,
		EnergyBefore: before,
		EnergyAfter:  after,
	}, nil
}
