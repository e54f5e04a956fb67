// Package quantum implements the complex operator algebra used by the exact
// backend. Operators are stored as their real embedding
//
//	R(A + iB) = [[A, -B], [B, A]]
//
// which is a *-homomorphism: R(XY) = R(X)R(Y), R(X†) = R(X)ᵀ and
// R(f(H)) = f(R(H)) for Hermitian H. That lets every product, exponential and
// eigen-decomposition run on gonum's real, BLAS-backed routines.
package quantum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Operator is a square complex matrix of dimension Dim().
type Operator struct {
	n int
	m *mat.Dense
}

// NewOperator returns the n×n zero operator.
func NewOperator(n int) *Operator {
	if n <= 0 {
		panic(fmt.Sprintf("quantum: invalid operator dimension %d", n))
	}
	return &Operator{n: n, m: mat.NewDense(2*n, 2*n, nil)}
}

// Identity returns the n×n identity.
func Identity(n int) *Operator {
	o := NewOperator(n)
	for i := 0; i < n; i++ {
		o.Set(i, i, 1)
	}
	return o
}

// Diagonal returns the operator with d on its diagonal.
func Diagonal(d []float64) *Operator {
	o := NewOperator(len(d))
	for i, v := range d {
		o.Set(i, i, complex(v, 0))
	}
	return o
}

// FromComplex builds an operator from row-major complex data.
func FromComplex(n int, data []complex128) (*Operator, error) {
	if len(data) != n*n {
		return nil, fmt.Errorf("expected %d elements for a %dx%d operator, got %d", n*n, n, n, len(data))
	}
	o := NewOperator(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			o.Set(i, j, data[i*n+j])
		}
	}
	return o, nil
}

// FromParts builds an operator from row-major real and imaginary parts.
func FromParts(n int, re, im []float64) (*Operator, error) {
	if len(re) != n*n || len(im) != n*n {
		return nil, fmt.Errorf("expected %d real and imaginary elements, got %d and %d", n*n, len(re), len(im))
	}
	o := NewOperator(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := i*n + j
			o.Set(i, j, complex(re[k], im[k]))
		}
	}
	return o, nil
}

// Outer returns |v⟩⟨v|.
func Outer(v []complex128) *Operator {
	n := len(v)
	o := NewOperator(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			o.Set(i, j, v[i]*cmplx.Conj(v[j]))
		}
	}
	return o
}

func wrap(n int, m *mat.Dense) *Operator {
	return &Operator{n: n, m: m}
}

// Dim returns the dimension of the operator.
func (o *Operator) Dim() int {
	return o.n
}

// At returns element (i, j).
func (o *Operator) At(i, j int) complex128 {
	return complex(o.m.At(i, j), o.m.At(o.n+i, j))
}

// Set assigns element (i, j).
func (o *Operator) Set(i, j int, v complex128) {
	re, im := real(v), imag(v)
	o.m.Set(i, j, re)
	o.m.Set(o.n+i, o.n+j, re)
	o.m.Set(o.n+i, j, im)
	o.m.Set(i, o.n+j, -im)
}

// Clone returns a deep copy.
func (o *Operator) Clone() *Operator {
	return wrap(o.n, mat.DenseCopyOf(o.m))
}

// CopyFrom overwrites o with src. Dimensions must match.
func (o *Operator) CopyFrom(src *Operator) {
	if src.n != o.n {
		panic(fmt.Sprintf("quantum: dimension mismatch %d != %d", src.n, o.n))
	}
	o.m.Copy(src.m)
}

// Parts returns row-major copies of the real and imaginary parts.
func (o *Operator) Parts() (re, im []float64) {
	n := o.n
	re = make([]float64, n*n)
	im = make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			re[i*n+j] = o.m.At(i, j)
			im[i*n+j] = o.m.At(n+i, j)
		}
	}
	return re, im
}

// Diag returns the real parts of the diagonal.
func (o *Operator) Diag() []float64 {
	d := make([]float64, o.n)
	for i := range d {
		d[i] = o.m.At(i, i)
	}
	return d
}

// Trace returns tr(o).
func (o *Operator) Trace() complex128 {
	var tr complex128
	for i := 0; i < o.n; i++ {
		tr += o.At(i, i)
	}
	return tr
}

// Adjoint returns o†.
func (o *Operator) Adjoint() *Operator {
	return wrap(o.n, mat.DenseCopyOf(o.m.T()))
}

// Mul returns a·b.
func Mul(a, b *Operator) *Operator {
	mustMatch(a, b)
	var c mat.Dense
	c.Mul(a.m, b.m)
	return wrap(a.n, &c)
}

// Combine returns wa·a + wb·b.
func Combine(wa float64, a *Operator, wb float64, b *Operator) *Operator {
	mustMatch(a, b)
	var x, y mat.Dense
	x.Scale(wa, a.m)
	y.Scale(wb, b.m)
	x.Add(&x, &y)
	return wrap(a.n, &x)
}

// Scale returns alpha·o.
func Scale(alpha float64, o *Operator) *Operator {
	var x mat.Dense
	x.Scale(alpha, o.m)
	return wrap(o.n, &x)
}

// Conjugate returns u·rho·u†.
func Conjugate(u, rho *Operator) *Operator {
	mustMatch(u, rho)
	var tmp, out mat.Dense
	tmp.Mul(u.m, rho.m)
	out.Mul(&tmp, u.m.T())
	return wrap(u.n, &out)
}

// Expectation returns Re tr(h·rho) without forming the product.
func Expectation(h, rho *Operator) float64 {
	mustMatch(h, rho)
	n := h.n
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += real(h.At(i, j) * rho.At(j, i))
		}
	}
	return sum
}

// EvolutionUnitary returns exp(-i·h·t) for Hermitian h.
func EvolutionUnitary(h *Operator, t float64) *Operator {
	n := h.n
	// R(-i t H) = -t · R(i) · R(H), with R(i) = [[0, -I], [I, 0]].
	gen := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := h.At(i, j)
			// -i t (a + ib) = t b - i t a
			re, im := t*imag(v), -t*real(v)
			gen.Set(i, j, re)
			gen.Set(n+i, n+j, re)
			gen.Set(n+i, j, im)
			gen.Set(i, n+j, -im)
		}
	}
	var u mat.Dense
	u.Exp(gen)
	return wrap(n, &u)
}

// IsHermitian reports whether |o_ij - conj(o_ji)| <= tol for all i, j.
func (o *Operator) IsHermitian(tol float64) bool {
	for i := 0; i < o.n; i++ {
		for j := i; j < o.n; j++ {
			if cmplx.Abs(o.At(i, j)-cmplx.Conj(o.At(j, i))) > tol {
				return false
			}
		}
	}
	return true
}

// IsFinite reports whether every element is finite.
func (o *Operator) IsFinite() bool {
	r, c := o.m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := o.m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// MaxAbsDiff returns max |a_ij - b_ij|.
func MaxAbsDiff(a, b *Operator) float64 {
	mustMatch(a, b)
	worst := 0.0
	for i := 0; i < a.n; i++ {
		for j := 0; j < a.n; j++ {
			if d := cmplx.Abs(a.At(i, j) - b.At(i, j)); d > worst {
				worst = d
			}
		}
	}
	return worst
}

// OffDiagonalL1 returns Σ_{i≠j} |o_ij|.
func (o *Operator) OffDiagonalL1() float64 {
	sum := 0.0
	for i := 0; i < o.n; i++ {
		for j := 0; j < o.n; j++ {
			if i != j {
				sum += cmplx.Abs(o.At(i, j))
			}
		}
	}
	return sum
}

func mustMatch(a, b *Operator) {
	if a.n != b.n {
		panic(fmt.Sprintf("quantum: dimension mismatch %d != %d", a.n, b.n))
	}
}
