// Package sampling draws discrete outcomes from a final exact state and
// derives the readout analytics of a run.
package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hamiltonian"
	"github.com/aristath/phaselock/internal/modules/quantum"
	"github.com/aristath/phaselock/internal/modules/state"
)

// DefaultShots is the number of draws per sampling pass.
const DefaultShots = 1000

// topOutcomes is the length of Result.Top.
const topOutcomes = 10

// Counts tallies outcomes by bitstring.
type Counts map[string]int

// Total returns the number of tallied draws.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// ReadoutMitigator corrects a raw tally for readout errors. Implementations
// live outside this package.
type ReadoutMitigator func(Counts) (Counts, error)

// Outcome is one tallied configuration.
type Outcome struct {
	Bitstring string  `json:"bitstring" msgpack:"b"`
	Count     int     `json:"count" msgpack:"c"`
	Energy    float64 `json:"energy" msgpack:"e"`
}

// Result is the outcome of a sampling pass.
type Result struct {
	Best      Outcome   `json:"best" msgpack:"best"`
	Top       []Outcome `json:"top" msgpack:"top"`
	Raw       Counts    `json:"raw" msgpack:"raw"`
	Mitigated Counts    `json:"mitigated,omitempty" msgpack:"mitigated,omitempty"`
	Shots     int       `json:"shots" msgpack:"shots"`
}

// Sampler draws from diag(ρ) using an injected random source.
type Sampler struct {
	Shots    int
	RNG      *rand.Rand
	Mitigate ReadoutMitigator
}

// New returns a sampler; zero shots selects DefaultShots.
func New(shots int, rng *rand.Rand, mitigate ReadoutMitigator) (*Sampler, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: sampler needs a random source", domain.ErrInvalidProblemSpec)
	}
	if shots == 0 {
		shots = DefaultShots
	}
	if shots < 0 {
		return nil, fmt.Errorf("%w: negative shot count %d", domain.ErrInvalidProblemSpec, shots)
	}
	return &Sampler{Shots: shots, RNG: rng, Mitigate: mitigate}, nil
}

// Sample draws Shots outcomes from the computational-basis distribution of s
// and ranks them by count, then energy, then bitstring.
func (sp *Sampler) Sample(s *state.ExactState) (*Result, error) {
	probs := s.Probabilities()
	n := s.Units()

	cum := make([]float64, len(probs))
	total := 0.0
	for i, p := range probs {
		total += math.Max(p, 0)
		cum[i] = total
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: basis distribution has total weight %v", domain.ErrNumericInstability, total)
	}
	for i := range cum {
		cum[i] /= total
	}
	cum[len(cum)-1] = 1

	raw := make(Counts)
	for shot := 0; shot < sp.Shots; shot++ {
		u := sp.RNG.Float64()
		idx := sort.Search(len(cum), func(i int) bool { return cum[i] > u })
		raw[quantum.Bitstring(idx, n)]++
	}

	result := &Result{Raw: raw, Shots: sp.Shots}
	ranked := raw
	if sp.Mitigate != nil {
		mitigated, err := sp.Mitigate(copyCounts(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to mitigate readout: %w", err)
		}
		result.Mitigated = mitigated
		ranked = mitigated
	}

	top, err := rank(ranked, s.Cost())
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, errors.New("no outcomes to rank")
	}
	result.Best = top[0]
	if len(top) > topOutcomes {
		top = top[:topOutcomes]
	}
	result.Top = top
	return result, nil
}

func rank(counts Counts, cost *quantum.Operator) ([]Outcome, error) {
	out := make([]Outcome, 0, len(counts))
	for bits, c := range counts {
		idx, err := quantum.ParseBitstring(bits)
		if err != nil || idx >= cost.Dim() {
			return nil, fmt.Errorf("invalid outcome %q in tally", bits)
		}
		out = append(out, Outcome{
			Bitstring: bits,
			Count:     c,
			Energy:    hamiltonian.DiagonalEnergy(cost, idx),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Energy != out[j].Energy {
			return out[i].Energy < out[j].Energy
		}
		return out[i].Bitstring < out[j].Bitstring
	})
	return out, nil
}

func copyCounts(c Counts) Counts {
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
