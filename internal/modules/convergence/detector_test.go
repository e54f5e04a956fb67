package convergence

import (
	"testing"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	d, err := New(0, 3)
	require.NoError(t, err)
	assert.Equal(t, DefaultTolerance, d.Tolerance)

	target := At(-10)
	tests := []struct {
		name      string
		iteration int
		energy    float64
		want      Decision
	}{
		{"far", 0, -5, Continue},
		{"just outside", 1, -9.98, Continue},
		{"inside", 1, -9.995, Converged},
		{"last iteration", 2, -5, BudgetExhausted},
		{"converged on last iteration", 2, -10, Converged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Check(tt.iteration, tt.energy, target))
		})
	}
}

func TestCheck_NoTargetRunsToBudget(t *testing.T) {
	d, err := New(0.01, 2)
	require.NoError(t, err)
	assert.Equal(t, Continue, d.Check(0, 0, Target{}))
	assert.Equal(t, BudgetExhausted, d.Check(1, 0, Target{}))
	assert.False(t, d.Within(0, Target{}))
}

func TestFirstConvergence(t *testing.T) {
	d, err := New(0.1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, d.FirstConvergence([]float64{3, 1, 0.05, 0.01}, At(0)))
	assert.Equal(t, 3, d.FirstConvergence([]float64{3, 1, 0.5}, At(0)))
	assert.Equal(t, 2, d.FirstConvergence([]float64{3, 1}, Target{}))
}

func TestDecisionStatus(t *testing.T) {
	assert.Equal(t, domain.StatusConverged, Converged.Status())
	assert.Equal(t, domain.StatusBudgetExhausted, BudgetExhausted.Status())
	assert.Equal(t, "continue", Continue.String())
}

func TestNewRejects(t *testing.T) {
	_, err := New(-1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)
	_, err = New(0.01, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)
}
