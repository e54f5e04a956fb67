package quantum

import (
	"fmt"
	"strconv"
	"strings"
)

// Basis index convention: unit 0 is the most significant bit, so the pattern
// "1100" is basis index 12.

// Bit returns the value of unit k in basis index idx of an n-unit register.
func Bit(idx, k, n int) int {
	return (idx >> (n - 1 - k)) & 1
}

// Spin returns the Z eigenvalue (+1 for bit 0, -1 for bit 1) of unit k.
func Spin(idx, k, n int) float64 {
	return float64(1 - 2*Bit(idx, k, n))
}

// Bitstring formats a basis index as an n-character pattern.
func Bitstring(idx, n int) string {
	s := strconv.FormatInt(int64(idx), 2)
	if len(s) < n {
		s = strings.Repeat("0", n-len(s)) + s
	}
	return s
}

// ParseBitstring returns the basis index of a 0/1 pattern.
func ParseBitstring(pattern string) (int, error) {
	if pattern == "" {
		return 0, fmt.Errorf("empty pattern")
	}
	idx := 0
	for i, c := range pattern {
		switch c {
		case '0':
			idx <<= 1
		case '1':
			idx = idx<<1 | 1
		default:
			return 0, fmt.Errorf("invalid character %q at position %d", c, i)
		}
	}
	return idx, nil
}

// PauliX returns the single-unit bit-flip operator.
func PauliX() *Operator {
	o := NewOperator(2)
	o.Set(0, 1, 1)
	o.Set(1, 0, 1)
	return o
}

// PauliZ returns the single-unit phase operator.
func PauliZ() *Operator {
	return Diagonal([]float64{1, -1})
}

// Kron returns the Kronecker product a ⊗ b.
func Kron(a, b *Operator) *Operator {
	na, nb := a.n, b.n
	o := NewOperator(na * nb)
	for i := 0; i < na; i++ {
		for j := 0; j < na; j++ {
			aij := a.At(i, j)
			if aij == 0 {
				continue
			}
			for k := 0; k < nb; k++ {
				for l := 0; l < nb; l++ {
					o.Set(i*nb+k, j*nb+l, aij*b.At(k, l))
				}
			}
		}
	}
	return o
}

// KronList folds Kron over ops from left to right.
func KronList(ops ...*Operator) *Operator {
	out := ops[0]
	for _, op := range ops[1:] {
		out = Kron(out, op)
	}
	return out
}

// Embed places a single-unit operator on unit k of an n-unit register.
func Embed(op *Operator, k, n int) *Operator {
	ops := make([]*Operator, n)
	for i := range ops {
		ops[i] = Identity(2)
	}
	ops[k] = op
	return KronList(ops...)
}

// PartialTraceKeep returns the 2×2 reduced operator of unit keep in an n-unit
// register.
func PartialTraceKeep(rho *Operator, keep, n int) *Operator {
	dim := rho.n
	out := NewOperator(2)
	shift := n - 1 - keep
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			var sum complex128
			for idx := 0; idx < dim; idx++ {
				if Bit(idx, keep, n) != a {
					continue
				}
				// same environment, unit keep set to b
				jdx := idx&^(1<<shift) | b<<shift
				sum += rho.At(idx, jdx)
			}
			out.Set(a, b, sum)
		}
	}
	return out
}

// ControlledZPhases returns the diagonal of the CZ network over edges: entry
// idx is -1 when an odd number of edges have both endpoints set.
func ControlledZPhases(n int, edges [][2]int) []float64 {
	dim := 1 << n
	d := make([]float64, dim)
	for idx := 0; idx < dim; idx++ {
		sign := 1.0
		for _, e := range edges {
			if Bit(idx, e[0], n) == 1 && Bit(idx, e[1], n) == 1 {
				sign = -sign
			}
		}
		d[idx] = sign
	}
	return d
}

// ConjugateDiagonal returns D·rho·D† for the real diagonal unitary D = diag(d).
func ConjugateDiagonal(d []float64, rho *Operator) *Operator {
	out := NewOperator(rho.n)
	for i := 0; i < rho.n; i++ {
		for j := 0; j < rho.n; j++ {
			out.Set(i, j, rho.At(i, j)*complex(d[i]*d[j], 0))
		}
	}
	return out
}
