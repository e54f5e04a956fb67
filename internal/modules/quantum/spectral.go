package quantum

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// eigenEntropyCutoff drops eigenvalues that only carry rounding noise.
const eigenEntropyCutoff = 1e-10

type hermitianEigen struct {
	values  []float64 // 2n values, ascending, each complex eigenvalue twice
	vectors *mat.Dense
}

func decompose(h *Operator) (*hermitianEigen, error) {
	size := 2 * h.n
	sym := mat.NewSymDense(size, nil)
	for i := 0; i < size; i++ {
		for j := i; j < size; j++ {
			sym.SetSym(i, j, 0.5*(h.m.At(i, j)+h.m.At(j, i)))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("eigendecomposition did not converge")
	}

	values := eig.Values(nil)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite eigenvalue %v", v)
		}
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	return &hermitianEigen{values: values, vectors: &vectors}, nil
}

// Eigenvalues returns the eigenvalues of Hermitian h in ascending order.
func Eigenvalues(h *Operator) ([]float64, error) {
	e, err := decompose(h)
	if err != nil {
		return nil, err
	}
	sort.Float64s(e.values)
	out := make([]float64, h.n)
	for i := range out {
		// each eigenvalue of h appears twice in the embedding
		out[i] = 0.5 * (e.values[2*i] + e.values[2*i+1])
	}
	return out, nil
}

// ApplySpectral returns f(h) for Hermitian h.
func ApplySpectral(h *Operator, f func(float64) float64) (*Operator, error) {
	e, err := decompose(h)
	if err != nil {
		return nil, err
	}
	size := 2 * h.n
	scaled := mat.NewDense(size, size, nil)
	for j := 0; j < size; j++ {
		fv := f(e.values[j])
		for i := 0; i < size; i++ {
			scaled.Set(i, j, e.vectors.At(i, j)*fv)
		}
	}
	var out mat.Dense
	out.Mul(scaled, e.vectors.T())
	return project(h.n, &out), nil
}

// PrincipalVector returns a unit eigenvector of the largest eigenvalue of h.
func PrincipalVector(h *Operator) ([]complex128, float64, error) {
	e, err := decompose(h)
	if err != nil {
		return nil, 0, err
	}
	best := 0
	for j, v := range e.values {
		if v > e.values[best] {
			best = j
		}
	}
	n := h.n
	vec := make([]complex128, n)
	norm := 0.0
	for i := 0; i < n; i++ {
		// a real eigenvector [x; y] of the embedding is x + iy
		vec[i] = complex(e.vectors.At(i, best), e.vectors.At(n+i, best))
		norm += e.vectors.At(i, best)*e.vectors.At(i, best) + e.vectors.At(n+i, best)*e.vectors.At(n+i, best)
	}
	if norm == 0 {
		return nil, 0, fmt.Errorf("zero-norm principal vector")
	}
	scale := complex(1/math.Sqrt(norm), 0)
	for i := range vec {
		vec[i] *= scale
	}
	return vec, e.values[best], nil
}

// Sqrt returns the principal square root of a positive semidefinite operator.
// Small negative eigenvalues from rounding are treated as zero.
func Sqrt(rho *Operator) (*Operator, error) {
	return ApplySpectral(rho, func(x float64) float64 {
		return math.Sqrt(math.Max(x, 0))
	})
}

// Fidelity returns the Uhlmann fidelity (tr √(√ρ σ √ρ))².
func Fidelity(rho, sigma *Operator) (float64, error) {
	s, err := Sqrt(rho)
	if err != nil {
		return 0, fmt.Errorf("failed to take square root: %w", err)
	}
	inner := Mul(Mul(s, sigma), s)
	vals, err := Eigenvalues(inner)
	if err != nil {
		return 0, fmt.Errorf("failed to diagonalize fidelity kernel: %w", err)
	}
	tr := 0.0
	for _, v := range vals {
		tr += math.Sqrt(math.Max(v, 0))
	}
	return tr * tr, nil
}

// VonNeumannEntropy returns -Σ λ log2 λ over the non-negligible eigenvalues.
func VonNeumannEntropy(rho *Operator) (float64, error) {
	vals, err := Eigenvalues(rho)
	if err != nil {
		return 0, err
	}
	s := 0.0
	for _, v := range vals {
		if v > eigenEntropyCutoff {
			s -= v * math.Log2(v)
		}
	}
	return s, nil
}

// project rebuilds an exact embedding from a matrix that is one up to
// rounding, averaging the duplicated blocks.
func project(n int, m *mat.Dense) *Operator {
	o := NewOperator(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			re := 0.5 * (m.At(i, j) + m.At(n+i, n+j))
			im := 0.5 * (m.At(n+i, j) - m.At(i, n+j))
			o.Set(i, j, complex(re, im))
		}
	}
	return o
}
