package hamiltonian

import (
	"errors"
	"math"
	"testing"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func cycle4() [][]float64 {
	return [][]float64{
		{0, 1, 0, 1},
		{1, 0, 1, 0},
		{0, 1, 0, 1},
		{1, 0, 1, 0},
	}
}

func TestTargetPattern(t *testing.T) {
	h, err := TargetPattern("1100", WithUnits(4))
	require.NoError(t, err)
	require.Equal(t, 16, h.Dim())

	for i := 0; i < 16; i++ {
		want := DefaultPenalty
		if i == 12 {
			want = DefaultWellDepth
		}
		assert.Equal(t, want, DiagonalEnergy(h, i), "basis %d", i)
	}
	assert.Equal(t, 4, Units(h))
}

func TestTargetPattern_CustomConstants(t *testing.T) {
	h, err := TargetPattern("01", WithWellDepth(-3), WithPenalty(0.5))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -3, 0.5, 0.5}, h.Diag())
}

func TestTargetPattern_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		opts    []PatternOption
	}{
		{"length mismatch", "110", []PatternOption{WithUnits(4)}},
		{"negative dimension", "", []PatternOption{WithUnits(-1)}},
		{"empty", "", nil},
		{"bad character", "1x00", nil},
		{"too large", "00000000000", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TargetPattern(tt.pattern, tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidProblemSpec))
		})
	}
}

func TestMaxCut_CycleGroundStates(t *testing.T) {
	h, err := MaxCut(cycle4())
	require.NoError(t, err)

	// alternating assignments cut all four edges
	assert.Equal(t, -4.0, DiagonalEnergy(h, 0b1010))
	assert.Equal(t, -4.0, DiagonalEnergy(h, 0b0101))
	assert.Equal(t, 4.0, DiagonalEnergy(h, 0b0000))
	// 1100 cuts two edges
	assert.Equal(t, 0.0, DiagonalEnergy(h, 0b1100))

	ground, err := GroundEnergy(h)
	require.NoError(t, err)
	assert.InDelta(t, -4.0, ground, 1e-9)
}

func TestMaxCut_Invalid(t *testing.T) {
	_, err := MaxCut([][]float64{{0, 1}, {0, 0}})
	assert.True(t, errors.Is(err, domain.ErrInvalidProblemSpec))

	_, err = MaxCut([][]float64{{0, 1, 0}, {1, 0}})
	assert.True(t, errors.Is(err, domain.ErrInvalidProblemSpec))

	_, err = MaxCut(nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidProblemSpec))
}

func TestDriver_SumOfBitFlips(t *testing.T) {
	d, err := Driver(3)
	require.NoError(t, err)
	require.True(t, d.IsHermitian(0))

	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			x := i ^ j
			want := 0.0
			if x != 0 && x&(x-1) == 0 {
				want = 1
			}
			assert.Equal(t, complex(want, 0), d.At(i, j))
		}
	}

	vals, err := quantum.Eigenvalues(d)
	require.NoError(t, err)
	assert.InDelta(t, -3, vals[0], 1e-9)
	assert.InDelta(t, 3, vals[len(vals)-1], 1e-9)
}

func TestMeanFieldCoupling(t *testing.T) {
	c, err := CouplingFromAdjacency([][]float64{{0, 2, 0}, {2, 0, 1}, {0, 1, 0}})
	require.NoError(t, err)

	phases := []float64{0, math.Pi / 2, math.Pi}
	h, err := MeanFieldCoupling(phases, c)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, h.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, h.At(1, 1), 1e-12)
	assert.InDelta(t, -1.0, h.At(2, 2), 1e-12)
	assert.InDelta(t, 2*math.Cos(-math.Pi/2), h.At(0, 1), 1e-12)
	assert.InDelta(t, math.Cos(-math.Pi/2), h.At(1, 2), 1e-12)
	assert.Equal(t, 0.0, h.At(0, 2), "uncoupled pair stays zero")

	_, err = MeanFieldCoupling([]float64{0, 1}, c)
	assert.True(t, errors.Is(err, domain.ErrInvalidProblemSpec))
	_, err = MeanFieldCoupling([]float64{0}, (*mat.SymDense)(nil))
	assert.True(t, errors.Is(err, domain.ErrInvalidProblemSpec))
}
