package topology

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/state"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

const (
	// rangeEpsilon is the smallest Fiedler spread that can be mapped onto a
	// full turn.
	rangeEpsilon = 1e-12
	// connectivityEpsilon separates λ₂ from zero; below it the graph is
	// disconnected and the second eigenvector carries no ordering.
	connectivityEpsilon = 1e-10
)

// HotStart is the outcome of the spectral initializer.
type HotStart struct {
	State *state.MeanFieldState
	// Fiedler is the eigenvector of the second-smallest Laplacian eigenvalue.
	Fiedler []float64
	// AlgebraicConnectivity is λ₂ of the Laplacian.
	AlgebraicConnectivity float64
	// Degenerate is set when the fallback phases were used.
	Degenerate bool
}

// Option configures an Initializer.
type Option func(*Initializer)

// WithRandomFallback replaces the all-zero fallback by uniform random phases.
func WithRandomFallback(rng *rand.Rand) Option {
	return func(in *Initializer) { in.rng = rng }
}

// WithStrictDegeneracy turns a degenerate Fiedler vector into an error.
func WithStrictDegeneracy() Option {
	return func(in *Initializer) { in.strict = true }
}

// Initializer maps the Fiedler vector of a graph Laplacian onto phases.
type Initializer struct {
	rng    *rand.Rand
	strict bool
	log    zerolog.Logger
}

// NewInitializer creates a spectral initializer.
func NewInitializer(log zerolog.Logger, opts ...Option) *Initializer {
	in := &Initializer{log: log.With().Str("component", "topology").Logger()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// HotStart computes the initial mean-field state for g. The state's coupling
// is the graph's adjacency.
func (in *Initializer) HotStart(g *Graph) (*HotStart, error) {
	if g == nil || g.Units() < 2 {
		n := 0
		if g != nil {
			n = g.Units()
		}
		return nil, fmt.Errorf("%w: a Fiedler vector needs at least two units, got %d", domain.ErrDegenerateInitialization, n)
	}
	n := g.Units()

	var eig mat.EigenSym
	if ok := eig.Factorize(g.Laplacian(), true); !ok {
		return nil, fmt.Errorf("%w: Laplacian eigendecomposition did not converge", domain.ErrNumericInstability)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	fiedler := make([]float64, n)
	mat.Col(fiedler, 1, &vectors)
	lambda2 := values[1]

	lo, hi := fiedler[0], fiedler[0]
	for _, v := range fiedler {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	spread := hi - lo

	result := &HotStart{Fiedler: fiedler, AlgebraicConnectivity: lambda2}
	phases := make([]float64, n)

	switch {
	case spread < rangeEpsilon || math.IsNaN(spread) || lambda2 < connectivityEpsilon:
		if in.strict {
			return nil, fmt.Errorf("%w: Fiedler vector spread %.3g, lambda2 %.3g", domain.ErrDegenerateInitialization, spread, lambda2)
		}
		result.Degenerate = true
		if in.rng != nil {
			for i := range phases {
				phases[i] = in.rng.Float64() * 2 * math.Pi
			}
		}
		in.log.Warn().
			Float64("spread", spread).
			Float64("lambda2", lambda2).
			Bool("random_fallback", in.rng != nil).
			Msg("Degenerate Fiedler vector, using fallback phases")
	default:
		if n > 2 && math.Abs(values[2]-lambda2) < 1e-9 {
			in.log.Debug().Float64("lambda2", lambda2).Msg("Repeated algebraic connectivity, Fiedler vector is one of several")
		}
		for i, v := range fiedler {
			phases[i] = 2 * math.Pi * (v - lo) / spread
		}
	}

	s, err := state.NewMeanFieldState(g.Coupling(), phases)
	if err != nil {
		return nil, err
	}
	result.State = s
	return result, nil
}
