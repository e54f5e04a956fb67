// Package domain holds the types shared by the engine, persistence and the API.
package domain

import (
	"math"
	"time"
)

// Backend selects the state representation used by a run.
type Backend string

const (
	// BackendExact evolves a full 2^n density matrix.
	BackendExact Backend = "exact"
	// BackendMeanField evolves a vector of n phase angles.
	BackendMeanField Backend = "mean_field"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == BackendExact || b == BackendMeanField
}

// Status is the terminal state of a run.
type Status string

const (
	StatusPending           Status = "pending"
	StatusRunning           Status = "running"
	StatusConverged         Status = "converged"
	StatusBudgetExhausted   Status = "budget_exhausted"
	StatusRefinementSkipped Status = "refinement_skipped"
	StatusAborted           Status = "aborted"
	StatusFailed            Status = "failed"
)

// Terminal reports whether no further work happens for a run in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusBudgetExhausted, StatusRefinementSkipped, StatusAborted, StatusFailed:
		return true
	}
	return false
}

// MetricVector is the six-dimensional SECURE quality vector. Values are
// clamped to [0,1] by the tracker; the formulas behind each field differ
// per backend and are not comparable across backends.
type MetricVector struct {
	Superposition      float64 `json:"superposition" msgpack:"s"`
	Entanglement       float64 `json:"entanglement" msgpack:"e"`
	Coherence          float64 `json:"coherence" msgpack:"c"`
	Uncertainty        float64 `json:"uncertainty" msgpack:"u"`
	Resilience         float64 `json:"resilience" msgpack:"r"`
	EvolutionStability float64 `json:"evolution_stability" msgpack:"e2"`
	// Degraded is set when a component had to be replaced by a neutral value
	// because its formula produced a non-finite result.
	Degraded bool `json:"degraded,omitempty" msgpack:"d,omitempty"`
}

// Values returns the metrics in S, E, C, U, R, E2 order.
func (m MetricVector) Values() [6]float64 {
	return [6]float64{
		m.Superposition,
		m.Entanglement,
		m.Coherence,
		m.Uncertainty,
		m.Resilience,
		m.EvolutionStability,
	}
}

// Score is the mean of the six metrics on a 0-100 scale.
func (m MetricVector) Score() float64 {
	sum := 0.0
	for _, v := range m.Values() {
		sum += v
	}
	return sum / 6 * 100
}

// Sub returns the per-metric difference m - o.
func (m MetricVector) Sub(o MetricVector) MetricVector {
	return MetricVector{
		Superposition:      m.Superposition - o.Superposition,
		Entanglement:       m.Entanglement - o.Entanglement,
		Coherence:          m.Coherence - o.Coherence,
		Uncertainty:        m.Uncertainty - o.Uncertainty,
		Resilience:         m.Resilience - o.Resilience,
		EvolutionStability: m.EvolutionStability - o.EvolutionStability,
	}
}

// Bounded reports whether every metric lies in [0,1].
func (m MetricVector) Bounded() bool {
	for _, v := range m.Values() {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Snapshot is an owned copy of a state at one iteration. Exact snapshots carry
// the density matrix row-major in Real/Imag; mean-field snapshots carry Phases.
type Snapshot struct {
	Backend Backend   `json:"backend" msgpack:"b"`
	Dim     int       `json:"dim" msgpack:"n"`
	Real    []float64 `json:"real,omitempty" msgpack:"re,omitempty"`
	Imag    []float64 `json:"imag,omitempty" msgpack:"im,omitempty"`
	Phases  []float64 `json:"phases,omitempty" msgpack:"ph,omitempty"`
}

// At returns element (i, j) of an exact snapshot.
func (s Snapshot) At(i, j int) complex128 {
	k := i*s.Dim + j
	return complex(s.Real[k], s.Imag[k])
}

// Trace returns the real part of the trace of an exact snapshot, or 0 for
// mean-field snapshots.
func (s Snapshot) Trace() float64 {
	if s.Backend != BackendExact {
		return 0
	}
	tr := 0.0
	for i := 0; i < s.Dim; i++ {
		tr += s.Real[i*s.Dim+i]
	}
	return tr
}

// EvolutionLogEntry records one iteration of a run.
type EvolutionLogEntry struct {
	Iteration int          `json:"iteration" msgpack:"i"`
	Snapshot  Snapshot     `json:"snapshot" msgpack:"s"`
	Energy    float64      `json:"energy" msgpack:"e"`
	Metrics   MetricVector `json:"metrics" msgpack:"m"`
}

// EvolutionLog is the append-only per-iteration history of a run.
type EvolutionLog struct {
	entries []EvolutionLogEntry
	index   map[int]int
}

// NewEvolutionLog creates an empty log with room for capacity entries.
func NewEvolutionLog(capacity int) *EvolutionLog {
	return &EvolutionLog{
		entries: make([]EvolutionLogEntry, 0, capacity),
		index:   make(map[int]int, capacity),
	}
}

// Append adds an entry. The caller hands over ownership of the snapshot.
func (l *EvolutionLog) Append(e EvolutionLogEntry) {
	l.index[e.Iteration] = len(l.entries)
	l.entries = append(l.entries, e)
}

// At looks an entry up by iteration index.
func (l *EvolutionLog) At(iteration int) (EvolutionLogEntry, bool) {
	i, ok := l.index[iteration]
	if !ok {
		return EvolutionLogEntry{}, false
	}
	return l.entries[i], true
}

// Len returns the number of entries.
func (l *EvolutionLog) Len() int {
	return len(l.entries)
}

// Entries returns the entries in append order. The slice must not be modified.
func (l *EvolutionLog) Entries() []EvolutionLogEntry {
	return l.entries
}

// Last returns the most recent entry.
func (l *EvolutionLog) Last() (EvolutionLogEntry, bool) {
	if len(l.entries) == 0 {
		return EvolutionLogEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Energies returns the energy trajectory.
func (l *EvolutionLog) Energies() []float64 {
	out := make([]float64, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Energy
	}
	return out
}

// Metrics returns the metric trajectory.
func (l *EvolutionLog) Metrics() []MetricVector {
	out := make([]MetricVector, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Metrics
	}
	return out
}

// Trigger names a feedback condition.
type Trigger string

const (
	TriggerEnergyIncrease    Trigger = "energy_increase"
	TriggerCoherenceCollapse Trigger = "coherence_collapse"
	TriggerEntanglementLoss  Trigger = "entanglement_loss"
)

// FeedbackEvent is appended to the feedback log whenever the controller
// intervenes.
type FeedbackEvent struct {
	Iteration   int       `json:"iteration" msgpack:"i"`
	Triggers    []Trigger `json:"triggers" msgpack:"t"`
	EnergyDelta float64   `json:"energy_delta" msgpack:"d"`
	Boosted     bool      `json:"boosted" msgpack:"b"`
	Refocused   bool      `json:"refocused" msgpack:"r"`
	Timestamp   time.Time `json:"timestamp" msgpack:"ts"`
}
