package sampling

import (
	"math"
	"math/cmplx"

	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/state"
)

// DefaultBaseline is the reference contrast SNRImprovement divides by.
const DefaultBaseline = 2.0

// UnitPhase summarizes one unit's reduced state.
type UnitPhase struct {
	Unit  int     `json:"unit" msgpack:"u"`
	P0    float64 `json:"p0" msgpack:"p0"`
	P1    float64 `json:"p1" msgpack:"p1"`
	Phase float64 `json:"phase" msgpack:"ph"`
}

// ExtractPhases reduces rho to every unit in turn and reads its populations
// and the coherence phase arg(ρ₁₀), wrapped into [0, 2π).
func ExtractPhases(rho *quantum.Operator, units int) []UnitPhase {
	out := make([]UnitPhase, units)
	for k := 0; k < units; k++ {
		r := quantum.PartialTraceKeep(rho, k, units)
		out[k] = UnitPhase{
			Unit:  k,
			P0:    real(r.At(0, 0)),
			P1:    real(r.At(1, 1)),
			Phase: state.Wrap(cmplx.Phase(r.At(1, 0))),
		}
	}
	return out
}

// TargetProbability is the population of basis state idx.
func TargetProbability(rho *quantum.Operator, idx int) float64 {
	return real(rho.At(idx, idx))
}

// SNRImprovement compares the target population with the mean population of
// the other states, relative to baseline. It is +Inf once every other state
// is empty.
func SNRImprovement(rho *quantum.Operator, idx int, baseline float64) float64 {
	dim := rho.Dim()
	pt := TargetProbability(rho, idx)
	if dim < 2 {
		return math.Inf(1)
	}
	background := (1 - pt) / float64(dim-1)
	if background <= 0 {
		return math.Inf(1)
	}
	return pt / background / baseline
}

// InterferenceVisibility is (Imax − Imin)/(Imax + Imin) over the basis
// populations, zero when they are all empty.
func InterferenceVisibility(rho *quantum.Operator) float64 {
	probs := rho.Diag()
	if len(probs) == 0 {
		return 0
	}
	hi, lo := probs[0], probs[0]
	for _, p := range probs {
		hi = math.Max(hi, p)
		lo = math.Min(lo, p)
	}
	if hi+lo == 0 {
		return 0
	}
	return (hi - lo) / (hi + lo)
}
