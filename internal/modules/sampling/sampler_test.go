package sampling

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, pattern string) *state.ExactState {
	t.Helper()
	cost, err := hamiltonian.TargetPattern(pattern)
	require.NoError(t, err)
	s, err := state.NewExactState(cost)
	require.NoError(t, err)
	return s
}

func newSampler(t *testing.T, mitigate ReadoutMitigator) *Sampler {
	t.Helper()
	sp, err := New(0, rand.New(rand.NewPCG(42, 0)), mitigate)
	require.NoError(t, err)
	return sp
}

func TestSample_BasisState(t *testing.T) {
	s := newState(t, "11")
	s.Set(quantum.Diagonal([]float64{0, 0, 0, 1}))

	res, err := newSampler(t, nil).Sample(s)
	require.NoError(t, err)
	assert.Equal(t, DefaultShots, res.Shots)
	assert.Equal(t, Counts{"11": 1000}, res.Raw)
	assert.Equal(t, "11", res.Best.Bitstring)
	assert.Equal(t, -10.0, res.Best.Energy)
	assert.Len(t, res.Top, 1)
	assert.Nil(t, res.Mitigated)
}

func TestSample_UniformIsDeterministicPerSeed(t *testing.T) {
	s := newState(t, "1100")

	a, err := newSampler(t, nil).Sample(s)
	require.NoError(t, err)
	b, err := newSampler(t, nil).Sample(s)
	require.NoError(t, err)
	assert.Equal(t, a.Raw, b.Raw)

	assert.Equal(t, 1000, a.Raw.Total())
	assert.Len(t, a.Top, 10)
	for _, c := range a.Raw {
		assert.InDelta(t, 1000.0/16, float64(c), 40)
	}
	// sampled energy never exceeds the largest non-target diagonal entry
	assert.LessOrEqual(t, a.Best.Energy, 1.0)
}

func TestSample_NegativeDiagonalIsIgnored(t *testing.T) {
	s := newState(t, "1")
	s.Set(quantum.Diagonal([]float64{-1e-12, 1}))

	res, err := newSampler(t, nil).Sample(s)
	require.NoError(t, err)
	assert.Equal(t, Counts{"1": 1000}, res.Raw)
}

func TestSample_Mitigation(t *testing.T) {
	s := newState(t, "10")
	s.Set(quantum.Diagonal([]float64{1, 0, 0, 0}))

	moveAll := func(c Counts) (Counts, error) {
		return Counts{"10": c.Total()}, nil
	}
	res, err := newSampler(t, moveAll).Sample(s)
	require.NoError(t, err)
	assert.Equal(t, Counts{"00": 1000}, res.Raw)
	assert.Equal(t, Counts{"10": 1000}, res.Mitigated)
	assert.Equal(t, "10", res.Best.Bitstring)

	failing := func(Counts) (Counts, error) { return nil, errors.New("calibration missing") }
	_, err = newSampler(t, failing).Sample(s)
	assert.ErrorContains(t, err, "calibration missing")
}

func TestSample_EmptyDistribution(t *testing.T) {
	s := newState(t, "1")
	s.Set(quantum.NewOperator(2))
	_, err := newSampler(t, nil).Sample(s)
	assert.ErrorIs(t, err, domain.ErrNumericInstability)
}

func TestRankBreaksTies(t *testing.T) {
	cost, err := hamiltonian.TargetPattern("01")
	require.NoError(t, err)

	out, err := rank(Counts{"11": 5, "01": 5, "00": 5, "10": 9}, cost)
	require.NoError(t, err)
	got := make([]string, len(out))
	for i, o := range out {
		got[i] = o.Bitstring
	}
	assert.Equal(t, []string{"10", "01", "00", "11"}, got)

	_, err = rank(Counts{"2": 1}, cost)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	_, err := New(10, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)
	_, err = New(-1, rand.New(rand.NewPCG(1, 1)), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)
}

func TestExtractPhases(t *testing.T) {
	v := []complex128{complex(1/math.Sqrt2, 0), complex(0, 1/math.Sqrt2)}
	phases := ExtractPhases(quantum.Outer(v), 1)
	require.Len(t, phases, 1)
	assert.InDelta(t, 0.5, phases[0].P0, 1e-12)
	assert.InDelta(t, 0.5, phases[0].P1, 1e-12)
	assert.InDelta(t, math.Pi/2, phases[0].Phase, 1e-12)

	uniform := newState(t, "101").Density()
	for _, p := range ExtractPhases(uniform, 3) {
		assert.InDelta(t, 0, p.Phase, 1e-12)
		assert.InDelta(t, 0.5, p.P1, 1e-12)
	}
}

func TestSNRAndVisibility(t *testing.T) {
	uniform := newState(t, "11").Density()
	assert.InDelta(t, 0.25, TargetProbability(uniform, 3), 1e-12)
	assert.InDelta(t, 0.5, SNRImprovement(uniform, 3, DefaultBaseline), 1e-12)
	assert.InDelta(t, 0, InterferenceVisibility(uniform), 1e-12)

	basis := quantum.Diagonal([]float64{0, 0, 0, 1})
	assert.True(t, math.IsInf(SNRImprovement(basis, 3, DefaultBaseline), 1))
	assert.InDelta(t, 1, InterferenceVisibility(basis), 1e-12)
	assert.Equal(t, 0.0, InterferenceVisibility(quantum.NewOperator(2)))
}
