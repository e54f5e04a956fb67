package metrics

import (
	"math"
	"math/cmplx"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const offDiagonalEpsilon = 1e-10

// MeanFieldTracker computes the spectral proxies of the SECURE vector for a
// phase vector.
type MeanFieldTracker struct {
	log zerolog.Logger
}

// NewMeanFieldTracker creates a tracker.
func NewMeanFieldTracker(log zerolog.Logger) *MeanFieldTracker {
	return &MeanFieldTracker{log: log.With().Str("component", "mean_field_metrics").Logger()}
}

// Track computes the vector from the instantaneous coupling Hamiltonian.
func (t *MeanFieldTracker) Track(s *state.MeanFieldState) (domain.MetricVector, error) {
	h, err := s.Hamiltonian()
	if err != nil {
		return domain.MetricVector{}, err
	}
	eigs, err := state.SymmetricEigenvalues(h)
	if err != nil {
		return domain.MetricVector{}, err
	}

	var b vectorBuilder
	v := b.build(
		spectralParticipation(eigs),
		offDiagonalShare(h),
		PhaseCoherence(s.Phases()),
		lowGap(eigs),
		positiveFraction(eigs),
		spectralSmoothness(eigs),
	)
	if v.Degraded {
		t.log.Warn().Msg("Degraded SECURE vector")
	}
	return v, nil
}

// PhaseCoherence is |mean e^{iθ}|, the Kuramoto order parameter.
func PhaseCoherence(phases []float64) float64 {
	if len(phases) == 0 {
		return 0
	}
	var sum complex128
	for _, p := range phases {
		sum += cmplx.Rect(1, p)
	}
	return cmplx.Abs(sum) / float64(len(phases))
}

func spectralParticipation(eigs []float64) float64 {
	total := 0.0
	for _, e := range eigs {
		if e > 0 {
			total += e
		}
	}
	if total == 0 {
		return 0
	}
	sumSq := 0.0
	for _, e := range eigs {
		if e > 0 {
			p := e / total
			sumSq += p * p
		}
	}
	return math.Min(1/sumSq/float64(len(eigs)), 1)
}

func offDiagonalShare(h *mat.SymDense) float64 {
	n := h.SymmetricDim()
	diag, off := 0.0, 0.0
	for i := 0; i < n; i++ {
		diag += math.Abs(h.At(i, i))
		for j := 0; j < n; j++ {
			if j != i {
				off += math.Abs(h.At(i, j))
			}
		}
	}
	return off / (diag + off + offDiagonalEpsilon)
}

func lowGap(eigs []float64) float64 {
	if len(eigs) < 2 {
		return 0
	}
	return math.Min((eigs[1]-eigs[0])/2, 1)
}

func positiveFraction(eigs []float64) float64 {
	pos := 0
	for _, e := range eigs {
		if e > 0 {
			pos++
		}
	}
	return float64(pos) / float64(len(eigs))
}

func spectralSmoothness(eigs []float64) float64 {
	if len(eigs) <= 2 {
		return 0.5
	}
	return math.Max(1-stat.PopVariance(eigs, nil)/10, 0)
}
