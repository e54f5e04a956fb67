// Package metrics computes the six-dimensional SECURE quality vector for
// both backends. The two trackers share field names but not formulas; their
// vectors are not comparable with each other.
package metrics

import (
	"math"

	"github.com/aristath/phaselock/internal/domain"
)

// StabilityWindow is the number of recent energies EvolutionStability looks
// at.
const StabilityWindow = 5

// vectorBuilder clamps every component into [0,1] and records NaNs.
type vectorBuilder struct {
	v domain.MetricVector
}

func (b *vectorBuilder) clamp(x float64) float64 {
	if math.IsNaN(x) {
		b.v.Degraded = true
		return 0
	}
	return math.Min(math.Max(x, 0), 1)
}

func (b *vectorBuilder) build(s, e, c, u, r, e2 float64) domain.MetricVector {
	b.v.Superposition = b.clamp(s)
	b.v.Entanglement = b.clamp(e)
	b.v.Coherence = b.clamp(c)
	b.v.Uncertainty = b.clamp(u)
	b.v.Resilience = b.clamp(r)
	b.v.EvolutionStability = b.clamp(e2)
	return b.v
}
