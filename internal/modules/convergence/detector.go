// Package convergence decides when the refinement loop stops.
package convergence

import (
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
)

// DefaultTolerance is the energy gap under which a run has converged.
const DefaultTolerance = 0.01

// Decision is the outcome of one check.
type Decision int

const (
	Continue Decision = iota
	Converged
	BudgetExhausted
)

func (d Decision) String() string {
	switch d {
	case Converged:
		return "converged"
	case BudgetExhausted:
		return "budget_exhausted"
	default:
		return "continue"
	}
}

// Status maps a terminal decision onto a run status.
func (d Decision) Status() domain.Status {
	switch d {
	case Converged:
		return domain.StatusConverged
	case BudgetExhausted:
		return domain.StatusBudgetExhausted
	default:
		return domain.StatusRunning
	}
}

// Target is an optional energy to reach.
type Target struct {
	Energy float64
	Set    bool
}

// At returns a set target.
func At(energy float64) Target { return Target{Energy: energy, Set: true} }

// Detector stops a loop on a small enough gap or a spent budget.
type Detector struct {
	Tolerance     float64
	MaxIterations int
}

// New validates the parameters. A zero tolerance selects DefaultTolerance.
func New(tolerance float64, maxIterations int) (*Detector, error) {
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("%w: tolerance %v must be positive", domain.ErrInvalidProblemSpec, tolerance)
	}
	if maxIterations <= 0 {
		return nil, fmt.Errorf("%w: iteration budget %d must be positive", domain.ErrInvalidProblemSpec, maxIterations)
	}
	return &Detector{Tolerance: tolerance, MaxIterations: maxIterations}, nil
}

// Within reports whether energy is inside the tolerance of target.
func (d *Detector) Within(energy float64, target Target) bool {
	return target.Set && math.Abs(energy-target.Energy) < d.Tolerance
}

// Check is called after iteration (zero-based) has produced energy.
// Reaching the target wins over running out of budget on the same iteration.
func (d *Detector) Check(iteration int, energy float64, target Target) Decision {
	if d.Within(energy, target) {
		return Converged
	}
	if iteration+1 >= d.MaxIterations {
		return BudgetExhausted
	}
	return Continue
}

// FirstConvergence returns the index of the first energy within tolerance of
// target, or len(energies) when none is.
func (d *Detector) FirstConvergence(energies []float64, target Target) int {
	for i, e := range energies {
		if d.Within(e, target) {
			return i
		}
	}
	return len(energies)
}
