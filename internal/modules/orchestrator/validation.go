package orchestrator

import (
	"math"

	"github.com/aristath/phaselock/internal/domain"
)

// Validation is the post-run sanity suite.
type Validation struct {
	StateSpaceExploration bool `json:"state_space_exploration" msgpack:"sse"`
	FeedbackEffectiveness bool `json:"feedback_effectiveness" msgpack:"fe"`
	TracePreserved        bool `json:"trace_preserved" msgpack:"tp"`
	MetricsBounded        bool `json:"metrics_bounded" msgpack:"mb"`
}

// Passed reports whether every check holds.
func (v Validation) Passed() bool {
	return v.StateSpaceExploration && v.FeedbackEffectiveness && v.TracePreserved && v.MetricsBounded
}

func validate(r *Report) Validation {
	v := Validation{
		FeedbackEffectiveness: true,
		TracePreserved:        true,
		MetricsBounded:        true,
	}

	if r.Status == domain.StatusConverged && r.Iterations == 0 {
		v.StateSpaceExploration = true
	}
	for _, e := range r.Energies[1:] {
		if e != r.Energies[0] {
			v.StateSpaceExploration = true
			break
		}
	}

	if len(r.Feedback) > 0 {
		sum := 0.0
		for _, ev := range r.Feedback {
			sum += ev.EnergyDelta
		}
		v.FeedbackEffectiveness = sum/float64(len(r.Feedback)) <= 0
	}

	if r.Backend == domain.BackendExact && r.Evolution != nil {
		for _, entry := range r.Evolution.Entries() {
			if math.Abs(entry.Snapshot.Trace()-1) > traceTolerance {
				v.TracePreserved = false
				break
			}
		}
	}

	for _, m := range r.Metrics {
		if !m.Bounded() {
			v.MetricsBounded = false
			break
		}
	}
	return v
}
