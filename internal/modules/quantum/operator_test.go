package quantum

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformDensity(dim int) *Operator {
	v := make([]complex128, dim)
	amp := complex(1/math.Sqrt(float64(dim)), 0)
	for i := range v {
		v[i] = amp
	}
	return Outer(v)
}

func TestOperator_SetAt(t *testing.T) {
	o := NewOperator(3)
	o.Set(0, 2, complex(1.5, -2))
	assert.Equal(t, complex(1.5, -2), o.At(0, 2))
	assert.Equal(t, complex128(0), o.At(2, 0))
}

func TestOperator_AdjointAndMul(t *testing.T) {
	a, err := FromComplex(2, []complex128{1, 2i, 3, 4 - 1i})
	require.NoError(t, err)

	adj := a.Adjoint()
	assert.Equal(t, cmplx.Conj(a.At(0, 1)), adj.At(1, 0))

	// (AB)† = B†A†
	b, err := FromComplex(2, []complex128{0.5i, 1, -1, 2})
	require.NoError(t, err)
	left := Mul(a, b).Adjoint()
	right := Mul(b.Adjoint(), a.Adjoint())
	assert.Less(t, MaxAbsDiff(left, right), 1e-12)
}

func TestFromComplex_WrongLength(t *testing.T) {
	_, err := FromComplex(2, []complex128{1, 2, 3})
	assert.Error(t, err)
}

func TestEvolutionUnitary_IsUnitaryAndPreservesTrace(t *testing.T) {
	h := Combine(0.7, Embed(PauliX(), 0, 2), 0.3, Kron(PauliZ(), PauliZ()))
	require.True(t, h.IsHermitian(1e-12))

	u := EvolutionUnitary(h, 0.1)
	uu := Mul(u, u.Adjoint())
	assert.Less(t, MaxAbsDiff(uu, Identity(4)), 1e-10)

	rho := uniformDensity(4)
	next := Conjugate(u, rho)
	assert.InDelta(t, 1.0, real(next.Trace()), 1e-10)
	assert.True(t, next.IsHermitian(1e-10))
}

func TestEvolutionUnitary_DiagonalPhases(t *testing.T) {
	h := Diagonal([]float64{1, -1})
	u := EvolutionUnitary(h, math.Pi/4)
	assert.InDelta(t, real(cmplx.Exp(complex(0, -math.Pi/4))), real(u.At(0, 0)), 1e-10)
	assert.InDelta(t, imag(cmplx.Exp(complex(0, -math.Pi/4))), imag(u.At(0, 0)), 1e-10)
	assert.InDelta(t, imag(cmplx.Exp(complex(0, math.Pi/4))), imag(u.At(1, 1)), 1e-10)
}

func TestExpectation_MatchesTraceOfProduct(t *testing.T) {
	h := Kron(PauliZ(), PauliX())
	rho := uniformDensity(4)
	assert.InDelta(t, real(Mul(h, rho).Trace()), Expectation(h, rho), 1e-12)
}

func TestOffDiagonalL1_UniformState(t *testing.T) {
	rho := uniformDensity(4)
	// 12 off-diagonal entries of 1/4
	assert.InDelta(t, 3.0, rho.OffDiagonalL1(), 1e-12)
}
