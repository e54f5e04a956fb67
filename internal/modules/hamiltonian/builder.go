// Package hamiltonian builds the cost operators the engine minimizes.
package hamiltonian

import (
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"gonum.org/v1/gonum/mat"
)

const (
	// MaxExactUnits bounds the exact backend: the real embedding of a 2^n
	// operator is 2^(n+1) square.
	MaxExactUnits = 10

	// DefaultWellDepth is the energy of the target basis state.
	DefaultWellDepth = -10.0
	// DefaultPenalty is the energy of every other basis state.
	DefaultPenalty = 1.0

	symmetryTolerance = 1e-9
)

type patternOptions struct {
	units     int
	unitsSet  bool
	wellDepth float64
	penalty   float64
}

// PatternOption tunes TargetPattern.
type PatternOption func(*patternOptions)

// WithUnits declares the expected pattern length.
func WithUnits(n int) PatternOption {
	return func(o *patternOptions) {
		o.units = n
		o.unitsSet = true
	}
}

// WithWellDepth sets the energy of the target state.
func WithWellDepth(v float64) PatternOption {
	return func(o *patternOptions) { o.wellDepth = v }
}

// WithPenalty sets the energy of non-target states.
func WithPenalty(v float64) PatternOption {
	return func(o *patternOptions) { o.penalty = v }
}

// TargetPattern builds the diagonal operator with a deep well on the basis
// state named by pattern and a flat penalty elsewhere.
func TargetPattern(pattern string, opts ...PatternOption) (*quantum.Operator, error) {
	o := patternOptions{wellDepth: DefaultWellDepth, penalty: DefaultPenalty}
	for _, opt := range opts {
		opt(&o)
	}

	n := len(pattern)
	if o.unitsSet && o.units < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", domain.ErrInvalidProblemSpec, o.units)
	}
	if o.unitsSet && n != o.units {
		return nil, fmt.Errorf("%w: pattern %q has length %d, expected %d units", domain.ErrInvalidProblemSpec, pattern, n, o.units)
	}
	if err := checkUnits(n); err != nil {
		return nil, err
	}
	target, err := quantum.ParseBitstring(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProblemSpec, err)
	}

	d := make([]float64, 1<<n)
	for i := range d {
		d[i] = o.penalty
	}
	d[target] = o.wellDepth
	return quantum.Diagonal(d), nil
}

// MaxCut builds H = Σ_{i<j, w_ij>0} w_ij Z_i Z_j. Assignments that cut the
// most edge weight between the two partitions have the lowest energy.
func MaxCut(adjacency [][]float64) (*quantum.Operator, error) {
	n := len(adjacency)
	if err := checkUnits(n); err != nil {
		return nil, err
	}
	if err := checkSymmetric(adjacency); err != nil {
		return nil, err
	}

	dim := 1 << n
	d := make([]float64, dim)
	for idx := 0; idx < dim; idx++ {
		e := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if w := adjacency[i][j]; w > 0 {
					e += w * quantum.Spin(idx, i, n) * quantum.Spin(idx, j, n)
				}
			}
		}
		d[idx] = e
	}
	return quantum.Diagonal(d), nil
}

// Driver builds the exploratory operator Σ_i X_i.
func Driver(n int) (*quantum.Operator, error) {
	if err := checkUnits(n); err != nil {
		return nil, err
	}
	out := quantum.NewOperator(1 << n)
	x := quantum.PauliX()
	for k := 0; k < n; k++ {
		out = quantum.Combine(1, out, 1, quantum.Embed(x, k, n))
	}
	return out, nil
}

// DiagonalEnergy returns the energy of basis state idx under a diagonal cost.
func DiagonalEnergy(cost *quantum.Operator, idx int) float64 {
	return real(cost.At(idx, idx))
}

// GroundEnergy returns the smallest eigenvalue of cost.
func GroundEnergy(cost *quantum.Operator) (float64, error) {
	vals, err := quantum.Eigenvalues(cost)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrNumericInstability, err)
	}
	return vals[0], nil
}

// Units returns n for an operator of dimension 2^n.
func Units(cost *quantum.Operator) int {
	n := 0
	for d := cost.Dim(); d > 1; d >>= 1 {
		n++
	}
	return n
}

// MeanFieldCoupling builds the instantaneous coupling Hamiltonian of a phase
// vector: H_ii = cos θ_i and H_ij = w_ij cos(θ_i − θ_j) on coupled pairs.
func MeanFieldCoupling(phases []float64, coupling *mat.SymDense) (*mat.SymDense, error) {
	n := len(phases)
	if coupling == nil || coupling.SymmetricDim() != n {
		size := 0
		if coupling != nil {
			size = coupling.SymmetricDim()
		}
		return nil, fmt.Errorf("%w: %d phases for a coupling matrix of size %d", domain.ErrInvalidProblemSpec, n, size)
	}
	h := mat.NewSymDense(n, nil)
	FillMeanField(h, phases, coupling)
	return h, nil
}

// FillMeanField writes the coupling Hamiltonian of phases into dst, which must
// already have the right size. It exists so the gradient sweep can reuse
// buffers.
func FillMeanField(dst *mat.SymDense, phases []float64, coupling *mat.SymDense) {
	n := len(phases)
	for i := 0; i < n; i++ {
		dst.SetSym(i, i, math.Cos(phases[i]))
		for j := i + 1; j < n; j++ {
			w := coupling.At(i, j)
			if w == 0 {
				dst.SetSym(i, j, 0)
				continue
			}
			dst.SetSym(i, j, w*math.Cos(phases[i]-phases[j]))
		}
	}
}

// CouplingFromAdjacency validates an adjacency matrix and converts it for the
// mean-field backend. Unlike the exact builders it has no unit limit.
func CouplingFromAdjacency(adjacency [][]float64) (*mat.SymDense, error) {
	n := len(adjacency)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty coupling matrix", domain.ErrInvalidProblemSpec)
	}
	if err := checkSymmetric(adjacency); err != nil {
		return nil, err
	}
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c.SetSym(i, j, adjacency[i][j])
		}
	}
	return c, nil
}

func checkUnits(n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("%w: negative dimension %d", domain.ErrInvalidProblemSpec, n)
	case n == 0:
		return fmt.Errorf("%w: at least one unit is required", domain.ErrInvalidProblemSpec)
	case n > MaxExactUnits:
		return fmt.Errorf("%w: %d units exceeds the exact backend limit of %d", domain.ErrInvalidProblemSpec, n, MaxExactUnits)
	}
	return nil
}

func checkSymmetric(adjacency [][]float64) error {
	n := len(adjacency)
	for i, row := range adjacency {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d entries, expected %d", domain.ErrInvalidProblemSpec, i, len(row), n)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := adjacency[i][j], adjacency[j][i]
			if math.IsNaN(a) || math.IsNaN(b) || math.Abs(a-b) > symmetryTolerance {
				return fmt.Errorf("%w: coupling (%d,%d)=%v differs from (%d,%d)=%v", domain.ErrInvalidProblemSpec, i, j, a, j, i, b)
			}
		}
	}
	return nil
}
