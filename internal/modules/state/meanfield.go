package state

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"gonum.org/v1/gonum/mat"
)

// MeanFieldState is a vector of phase angles evaluated through the smallest
// eigenvalue of its instantaneous coupling Hamiltonian.
type MeanFieldState struct {
	coupling *mat.SymDense
	phases   []float64
}

// NewMeanFieldState starts from a supplied phase vector (e.g. a hot start).
// Phases are copied and wrapped into [0, 2π).
func NewMeanFieldState(coupling *mat.SymDense, phases []float64) (*MeanFieldState, error) {
	if coupling == nil {
		return nil, fmt.Errorf("%w: nil coupling matrix", domain.ErrInvalidProblemSpec)
	}
	n := coupling.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty coupling matrix", domain.ErrInvalidProblemSpec)
	}
	if len(phases) != n {
		return nil, fmt.Errorf("%w: %d phases for %d units", domain.ErrInvalidProblemSpec, len(phases), n)
	}
	p := make([]float64, n)
	for i, v := range phases {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: phase %d is %v", domain.ErrInvalidProblemSpec, i, v)
		}
		p[i] = Wrap(v)
	}
	return &MeanFieldState{coupling: coupling, phases: p}, nil
}

// NewRandomMeanFieldState draws every phase uniformly from [0, 2π).
func NewRandomMeanFieldState(coupling *mat.SymDense, rng *rand.Rand) (*MeanFieldState, error) {
	if coupling == nil {
		return nil, fmt.Errorf("%w: nil coupling matrix", domain.ErrInvalidProblemSpec)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", domain.ErrInvalidProblemSpec)
	}
	n := coupling.SymmetricDim()
	phases := make([]float64, n)
	for i := range phases {
		phases[i] = rng.Float64() * twoPi
	}
	return NewMeanFieldState(coupling, phases)
}

// Backend implements Model.
func (s *MeanFieldState) Backend() domain.Backend { return domain.BackendMeanField }

// Units implements Model.
func (s *MeanFieldState) Units() int { return len(s.phases) }

// Coupling returns the edge-weight matrix.
func (s *MeanFieldState) Coupling() *mat.SymDense { return s.coupling }

// Phases returns a copy of the phase vector.
func (s *MeanFieldState) Phases() []float64 {
	out := make([]float64, len(s.phases))
	copy(out, s.phases)
	return out
}

// SetPhases replaces the whole vector at once, wrapping every coordinate.
func (s *MeanFieldState) SetPhases(phases []float64) error {
	if len(phases) != len(s.phases) {
		return fmt.Errorf("%w: %d phases for %d units", domain.ErrInvalidProblemSpec, len(phases), len(s.phases))
	}
	for i, v := range phases {
		s.phases[i] = Wrap(v)
	}
	return nil
}

// Hamiltonian returns the coupling Hamiltonian of the current phases.
func (s *MeanFieldState) Hamiltonian() (*mat.SymDense, error) {
	return hamiltonian.MeanFieldCoupling(s.phases, s.coupling)
}

// Energy implements Model: the ground-state energy of the instantaneous
// coupling Hamiltonian.
func (s *MeanFieldState) Energy() (float64, error) {
	return s.EnergyAt(s.phases)
}

// EnergyAt evaluates a trial phase vector against the same coupling. It is
// safe for concurrent use.
func (s *MeanFieldState) EnergyAt(phases []float64) (float64, error) {
	vals, err := s.spectrumAt(phases)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// Spectrum returns the ascending eigenvalues of the current Hamiltonian.
func (s *MeanFieldState) Spectrum() ([]float64, error) {
	return s.spectrumAt(s.phases)
}

func (s *MeanFieldState) spectrumAt(phases []float64) ([]float64, error) {
	h, err := hamiltonian.MeanFieldCoupling(phases, s.coupling)
	if err != nil {
		return nil, err
	}
	return SymmetricEigenvalues(h)
}

// SymmetricEigenvalues returns the ascending eigenvalues of a symmetric matrix,
// failing with ErrNumericInstability on non-convergence or non-finite values.
func SymmetricEigenvalues(h *mat.SymDense) ([]float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(h, false); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition did not converge", domain.ErrNumericInstability)
	}
	vals := eig.Values(nil)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite eigenvalue %v", domain.ErrNumericInstability, v)
		}
	}
	return vals, nil
}

// Snapshot implements Model.
func (s *MeanFieldState) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Backend: domain.BackendMeanField,
		Dim:     len(s.phases),
		Phases:  s.Phases(),
	}
}
