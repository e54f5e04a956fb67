package orchestrator

import (
	"math"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/sampling"
)

// snrCap replaces an unbounded SNR improvement in reports.
const snrCap = 1e12

// Efficiency locates the convergence point in the run.
type Efficiency struct {
	ConvergenceIteration int     `json:"convergence_iteration" msgpack:"ci"`
	TotalIterations      int     `json:"total_iterations" msgpack:"ti"`
	Ratio                float64 `json:"ratio" msgpack:"r"`
}

// Analytics are the exact-backend readout figures.
type Analytics struct {
	TargetIndex            int     `json:"target_index" msgpack:"ti"`
	TargetProbability      float64 `json:"target_probability" msgpack:"tp"`
	SNRImprovement         float64 `json:"snr_improvement" msgpack:"snr"`
	InterferenceVisibility float64 `json:"interference_visibility" msgpack:"v"`
}

// HotStartInfo describes the mean-field initialization.
type HotStartInfo struct {
	Mode                  InitMode `json:"mode" msgpack:"m"`
	Degenerate            bool     `json:"degenerate" msgpack:"d"`
	AlgebraicConnectivity float64  `json:"algebraic_connectivity" msgpack:"ac"`
}

// ErrorInfo is the abort reason of a run.
type ErrorInfo struct {
	Kind      string `json:"kind" msgpack:"k"`
	Iteration int    `json:"iteration" msgpack:"i"`
	Message   string `json:"message" msgpack:"msg"`
}

// Report is the final outcome of a run.
type Report struct {
	RunID      string         `json:"run_id" msgpack:"id"`
	Backend    domain.Backend `json:"backend" msgpack:"b"`
	Status     domain.Status  `json:"status" msgpack:"st"`
	Units      int            `json:"units" msgpack:"u"`
	Iterations int            `json:"iterations" msgpack:"it"`

	TargetEnergy *float64 `json:"target_energy,omitempty" msgpack:"te,omitempty"`

	InitialEnergy float64 `json:"initial_energy" msgpack:"e0"`
	FinalEnergy   float64 `json:"final_energy" msgpack:"e1"`
	EnergyDelta   float64 `json:"energy_delta" msgpack:"de"`

	InitialMetrics domain.MetricVector `json:"initial_metrics" msgpack:"m0"`
	FinalMetrics   domain.MetricVector `json:"final_metrics" msgpack:"m1"`
	MetricDelta    domain.MetricVector `json:"metric_delta" msgpack:"dm"`
	InitialScore   float64             `json:"initial_score" msgpack:"s0"`
	FinalScore     float64             `json:"final_score" msgpack:"s1"`
	ScoreDelta     float64             `json:"score_delta" msgpack:"ds"`

	Energies  []float64             `json:"energies" msgpack:"es"`
	Metrics   []domain.MetricVector `json:"metrics" msgpack:"ms"`
	Objective []float64             `json:"objective,omitempty" msgpack:"obj,omitempty"`

	Feedback      []domain.FeedbackEvent `json:"feedback" msgpack:"fb"`
	FeedbackStats map[domain.Trigger]int `json:"feedback_stats" msgpack:"fs"`

	// PhaseMap is indexed by zero-based channel.
	PhaseMap   []float64            `json:"phase_map" msgpack:"pm"`
	UnitPhases []sampling.UnitPhase `json:"unit_phases,omitempty" msgpack:"up,omitempty"`
	Sample     *sampling.Result     `json:"sample,omitempty" msgpack:"sm,omitempty"`
	Analytics  *Analytics           `json:"analytics,omitempty" msgpack:"an,omitempty"`
	HotStart   *HotStartInfo        `json:"hot_start,omitempty" msgpack:"hs,omitempty"`

	Efficiency Efficiency `json:"efficiency" msgpack:"ef"`
	Validation Validation `json:"validation" msgpack:"va"`

	Error *ErrorInfo `json:"error,omitempty" msgpack:"err,omitempty"`

	StartedAt   time.Time     `json:"started_at" msgpack:"t0"`
	CompletedAt time.Time     `json:"completed_at" msgpack:"t1"`
	Duration    time.Duration `json:"duration_ns" msgpack:"dur"`

	// Evolution is persisted separately and stays out of the serialized
	// report.
	Evolution *domain.EvolutionLog `json:"-" msgpack:"-"`
}

// Converged reports whether the run reached its target.
func (r *Report) Converged() bool {
	return r.Status == domain.StatusConverged
}

func capSNR(v float64) float64 {
	if math.IsInf(v, 1) || v > snrCap {
		return snrCap
	}
	return v
}
