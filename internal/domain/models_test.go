package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricVector_Score(t *testing.T) {
	m := MetricVector{1, 1, 1, 1, 1, 1, false}
	assert.InDelta(t, 100.0, m.Score(), 1e-12)

	m = MetricVector{Superposition: 0.6, Coherence: 0.6}
	assert.InDelta(t, 20.0, m.Score(), 1e-12)
}

func TestMetricVector_Bounded(t *testing.T) {
	assert.True(t, MetricVector{Superposition: 1, Resilience: 0}.Bounded())
	assert.False(t, MetricVector{Uncertainty: 1.2}.Bounded())
	assert.False(t, MetricVector{Coherence: -0.1}.Bounded())
}

func TestEvolutionLog_LookupByIteration(t *testing.T) {
	log := NewEvolutionLog(4)
	for i := 0; i < 3; i++ {
		log.Append(EvolutionLogEntry{Iteration: i, Energy: float64(-i)})
	}

	require.Equal(t, 3, log.Len())
	e, ok := log.At(2)
	require.True(t, ok)
	assert.Equal(t, -2.0, e.Energy)

	_, ok = log.At(7)
	assert.False(t, ok)

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, 2, last.Iteration)
	assert.Equal(t, []float64{0, -1, -2}, log.Energies())
}

func TestSnapshot_Trace(t *testing.T) {
	s := Snapshot{
		Backend: BackendExact,
		Dim:     2,
		Real:    []float64{0.25, 0.1, 0.1, 0.75},
		Imag:    []float64{0, 0.2, -0.2, 0},
	}
	assert.InDelta(t, 1.0, s.Trace(), 1e-12)
	assert.Equal(t, complex(0.1, 0.2), s.At(0, 1))
}

func TestRunError_UnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("eigenvalue is NaN")
	err := fmt.Errorf("refine: %w", NewRunError(ErrNumericInstability, 7, cause))

	assert.True(t, errors.Is(err, ErrNumericInstability))
	assert.True(t, errors.Is(err, cause))

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 7, runErr.Iteration)
	assert.Equal(t, "numeric_instability", KindName(err))
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "", KindName(nil))
	assert.Equal(t, "invalid_problem_spec", KindName(fmt.Errorf("x: %w", ErrInvalidProblemSpec)))
	assert.Equal(t, "degenerate_initialization", KindName(ErrDegenerateInitialization))
	assert.Equal(t, "canceled", KindName(ErrCanceled))
	assert.Equal(t, "internal", KindName(errors.New("boom")))
}
