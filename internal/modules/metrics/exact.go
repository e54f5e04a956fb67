package metrics

import (
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// History is what the exact tracker needs from earlier iterations.
type History struct {
	// Previous is the density matrix of the preceding snapshot, nil at the
	// first iteration.
	Previous *quantum.Operator
	// Energies holds every logged energy, current one last.
	Energies []float64
}

// ExactTracker computes SECURE metrics of a density matrix.
type ExactTracker struct {
	cost      *quantum.Operator
	costSq    *quantum.Operator
	units     int
	halfRange float64
	log       zerolog.Logger
}

// NewExactTracker precomputes H² and the spectral half-range of cost.
func NewExactTracker(cost *quantum.Operator, log zerolog.Logger) (*ExactTracker, error) {
	vals, err := quantum.Eigenvalues(cost)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to diagonalize cost: %v", domain.ErrNumericInstability, err)
	}
	units := hamiltonian.Units(cost)
	return &ExactTracker{
		cost:      cost,
		costSq:    quantum.Mul(cost, cost),
		units:     units,
		halfRange: (vals[len(vals)-1] - vals[0]) / 2,
		log:       log.With().Str("component", "exact_metrics").Logger(),
	}, nil
}

// Track computes the vector for s. Failures inside a single formula degrade
// that component instead of failing the whole vector.
func (t *ExactTracker) Track(s *state.ExactState, h History) domain.MetricVector {
	rho := s.Density()
	var b vectorBuilder

	ent, err := Entanglement(rho, t.units)
	if err != nil {
		t.log.Warn().Err(err).Msg("Entanglement entropy unavailable")
		ent = math.NaN()
	}

	resilience := 1.0
	if h.Previous != nil {
		resilience, err = quantum.Fidelity(rho, h.Previous)
		if err != nil {
			t.log.Warn().Err(err).Msg("Fidelity unavailable")
			resilience = math.NaN()
		}
	}

	v := b.build(
		Superposition(rho),
		ent,
		Coherence(rho),
		t.uncertainty(rho),
		resilience,
		EnergyStability(h.Energies),
	)
	if v.Degraded {
		t.log.Warn().Msg("Degraded SECURE vector")
	}
	return v
}

// uncertainty is the energy standard deviation relative to the largest one
// the cost's spectrum allows. Negative variance from cancellation counts as
// zero.
func (t *ExactTracker) uncertainty(rho *quantum.Operator) float64 {
	if t.halfRange < 1e-12 {
		return 0
	}
	mean := quantum.Expectation(t.cost, rho)
	variance := quantum.Expectation(t.costSq, rho) - mean*mean
	return math.Sqrt(math.Max(variance, 0)) / t.halfRange
}

// Superposition is the participation ratio of the basis distribution diag(ρ)
// divided by the dimension: 1 for a uniform spread, 1/dim for a basis state.
func Superposition(rho *quantum.Operator) float64 {
	sumSq := 0.0
	for _, p := range rho.Diag() {
		sumSq += p * p
	}
	if sumSq == 0 {
		return 0
	}
	return 1 / sumSq / float64(rho.Dim())
}

// Entanglement is the base-2 von Neumann entropy of unit 0 reduced against the
// rest of the register.
func Entanglement(rho *quantum.Operator, units int) (float64, error) {
	if units < 2 {
		return 0, nil
	}
	return quantum.VonNeumannEntropy(quantum.PartialTraceKeep(rho, 0, units))
}

// Coherence is the l1 norm of the off-diagonal entries normalized by its pure
// state maximum dim−1.
func Coherence(rho *quantum.Operator) float64 {
	if rho.Dim() < 2 {
		return 0
	}
	return rho.OffDiagonalL1() / float64(rho.Dim()-1)
}

// EnergyStability is 1/(1+σ) over the last StabilityWindow energies, or 1
// while the history is not longer than the window.
func EnergyStability(energies []float64) float64 {
	if len(energies) <= StabilityWindow {
		return 1
	}
	return 1 / (1 + stat.PopStdDev(energies[len(energies)-StabilityWindow:], nil))
}
