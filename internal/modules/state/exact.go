package state

import (
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/quantum"
)

const hermitianTolerance = 1e-9

// ExactState is a density matrix over the 2^n basis states of an n-unit
// register, evaluated against a Hermitian cost operator.
type ExactState struct {
	cost  *quantum.Operator
	rho   *quantum.Operator
	units int
}

// NewExactState validates cost and initializes the uniform superposition:
// the rank-1 projector onto (1,…,1)/√dim, every entry equal to 1/dim.
func NewExactState(cost *quantum.Operator) (*ExactState, error) {
	if cost == nil {
		return nil, fmt.Errorf("%w: nil cost operator", domain.ErrInvalidProblemSpec)
	}
	dim := cost.Dim()
	if dim < 2 || dim&(dim-1) != 0 {
		return nil, fmt.Errorf("%w: cost dimension %d is not a power of two", domain.ErrInvalidProblemSpec, dim)
	}
	if !cost.IsHermitian(hermitianTolerance) {
		return nil, fmt.Errorf("%w: cost operator is not Hermitian", domain.ErrInvalidProblemSpec)
	}

	units := hamiltonian.Units(cost)

	rho := quantum.NewOperator(dim)
	v := complex(1/float64(dim), 0)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			rho.Set(i, j, v)
		}
	}

	return &ExactState{cost: cost, rho: rho, units: units}, nil
}

// ExactFromSnapshot rebuilds a state from a logged snapshot.
func ExactFromSnapshot(cost *quantum.Operator, snap domain.Snapshot) (*ExactState, error) {
	s, err := NewExactState(cost)
	if err != nil {
		return nil, err
	}
	if snap.Backend != domain.BackendExact || snap.Dim != cost.Dim() {
		return nil, fmt.Errorf("%w: snapshot of %s/%d does not fit a cost of dimension %d", domain.ErrInvalidProblemSpec, snap.Backend, snap.Dim, cost.Dim())
	}
	rho, err := quantum.FromParts(snap.Dim, snap.Real, snap.Imag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProblemSpec, err)
	}
	s.rho = rho
	return s, nil
}

// Backend implements Model.
func (s *ExactState) Backend() domain.Backend { return domain.BackendExact }

// Units implements Model.
func (s *ExactState) Units() int { return s.units }

// Dim returns 2^Units().
func (s *ExactState) Dim() int { return s.rho.Dim() }

// Cost returns the cost operator the state is evaluated against.
func (s *ExactState) Cost() *quantum.Operator { return s.cost }

// Density returns the current density matrix. Callers must not mutate it;
// use Set to replace it.
func (s *ExactState) Density() *quantum.Operator { return s.rho }

// Set replaces the density matrix.
func (s *ExactState) Set(rho *quantum.Operator) {
	if rho.Dim() != s.rho.Dim() {
		panic(fmt.Sprintf("state: density of dimension %d assigned to a %d-dimensional state", rho.Dim(), s.rho.Dim()))
	}
	s.rho = rho
}

// Clone returns an independent copy sharing the immutable cost operator.
func (s *ExactState) Clone() *ExactState {
	return &ExactState{cost: s.cost, rho: s.rho.Clone(), units: s.units}
}

// Energy returns Re tr(Hρ).
func (s *ExactState) Energy() (float64, error) {
	e := quantum.Expectation(s.cost, s.rho)
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return 0, fmt.Errorf("%w: energy is %v", domain.ErrNumericInstability, e)
	}
	return e, nil
}

// EnergyOf evaluates the cost against an arbitrary density matrix.
func (s *ExactState) EnergyOf(rho *quantum.Operator) float64 {
	return quantum.Expectation(s.cost, rho)
}

// Trace returns Re tr(ρ).
func (s *ExactState) Trace() float64 {
	return real(s.rho.Trace())
}

// Probabilities returns the computational-basis distribution diag(ρ).
func (s *ExactState) Probabilities() []float64 {
	return s.rho.Diag()
}

// CheckTrace fails when the trace has drifted more than tol away from 1.
func (s *ExactState) CheckTrace(tol float64) error {
	if tr := s.Trace(); math.Abs(tr-1) > tol {
		return fmt.Errorf("%w: trace drifted to %.12f", domain.ErrNumericInstability, tr)
	}
	return nil
}

// CheckValid fails on non-finite entries or loss of hermiticity.
func (s *ExactState) CheckValid() error {
	if !s.rho.IsFinite() {
		return fmt.Errorf("%w: density matrix has non-finite entries", domain.ErrNumericInstability)
	}
	if !s.rho.IsHermitian(1e-8) {
		return fmt.Errorf("%w: density matrix is no longer Hermitian", domain.ErrNumericInstability)
	}
	return nil
}

// Snapshot implements Model.
func (s *ExactState) Snapshot() domain.Snapshot {
	re, im := s.rho.Parts()
	return domain.Snapshot{
		Backend: domain.BackendExact,
		Dim:     s.rho.Dim(),
		Real:    re,
		Imag:    im,
	}
}
