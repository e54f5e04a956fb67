// Package orchestrator sequences a run: hot start, verification, gated
// refinement and the final report, for either backend.
package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/convergence"
	"github.com/rs/zerolog"
)

// progressEvery is the iteration interval of progress logs.
const progressEvery = 10

// Engine runs plans. It holds no per-run state and can be shared.
type Engine struct {
	workers int
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the mean-field gradient sweep.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates an engine.
func NewEngine(log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		workers: runtime.GOMAXPROCS(0),
		log:     log.With().Str("component", "orchestrator").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runner is one backend's view of the shared loop.
type runner interface {
	units() int
	// verify measures the state as it stands before refinement.
	verify() (domain.EvolutionLogEntry, error)
	// iterate performs step, feedback, validity checks and metrics for one
	// refinement iteration.
	iterate(ctx context.Context, iteration, budget int) (domain.EvolutionLogEntry, *domain.FeedbackEvent, error)
	// finish fills the backend-specific report sections.
	finish(r *Report) error
}

// Run executes plan. Construction errors return a nil report. Aborts during
// refinement return the partial report together with a *domain.RunError.
func (e *Engine) Run(ctx context.Context, plan Plan) (*Report, error) {
	plan = plan.withDefaults()
	if err := plan.validate(); err != nil {
		return nil, err
	}
	log := e.log.With().Str("run_id", plan.RunID).Str("backend", string(plan.Backend)).Logger()

	var (
		r   runner
		err error
	)
	started := e.now()
	report := &Report{
		RunID:         plan.RunID,
		Backend:       plan.Backend,
		StartedAt:     started,
		FeedbackStats: make(map[domain.Trigger]int),
	}

	switch plan.Backend {
	case domain.BackendExact:
		r, err = newExactRunner(plan, log)
	default:
		r, err = newMeanFieldRunner(plan, e.workers, log, report)
	}
	if err != nil {
		log.Error().Err(err).Msg("Run setup failed")
		runsTotal.WithLabelValues(string(plan.Backend), string(domain.StatusFailed)).Inc()
		return nil, err
	}
	if exact, ok := r.(*exactRunner); ok {
		plan.Target = exact.target
	}
	if plan.Target.Set {
		t := plan.Target.Energy
		report.TargetEnergy = &t
	}
	report.Units = r.units()

	detector, err := convergence.New(plan.Tolerance, max(plan.budget(), 1))
	if err != nil {
		return nil, err
	}

	budget := plan.budget()
	evo := domain.NewEvolutionLog(budget + 1)
	report.Evolution = evo

	initial, err := r.verify()
	if err != nil {
		log.Error().Err(err).Msg("Verification failed")
		runsTotal.WithLabelValues(string(plan.Backend), string(domain.StatusFailed)).Inc()
		return nil, err
	}
	evo.Append(initial)
	e.notifyIteration(plan, initial)

	score := initial.Metrics.Score()
	log.Info().
		Float64("energy", initial.Energy).
		Float64("score", score).
		Msg("Verification pass")

	var runErr *domain.RunError
	switch {
	case detector.Within(initial.Energy, plan.Target):
		report.Status = domain.StatusConverged
	case plan.Policy == PolicyGated && score >= plan.ScoreThreshold:
		report.Status = domain.StatusRefinementSkipped
		log.Info().Float64("score", score).Float64("threshold", plan.ScoreThreshold).Msg("Hot start accepted, refinement skipped")
	case budget == 0:
		report.Status = domain.StatusBudgetExhausted
	default:
		report.Status, runErr = e.refine(ctx, plan, r, detector, report, log)
	}

	if err := r.finish(report); err != nil && runErr == nil {
		runErr = domain.NewRunError(domain.ErrNumericInstability, evo.Len()-1, err)
		report.Status = domain.StatusAborted
	}
	e.assemble(report, detector, plan.Target)

	if runErr != nil {
		report.Error = &ErrorInfo{
			Kind:      domain.KindName(runErr),
			Iteration: runErr.Iteration,
			Message:   runErr.Error(),
		}
	}

	runsTotal.WithLabelValues(string(plan.Backend), string(report.Status)).Inc()
	runDuration.WithLabelValues(string(plan.Backend)).Observe(report.Duration.Seconds())

	log.Info().
		Str("status", string(report.Status)).
		Int("iterations", report.Iterations).
		Float64("final_energy", report.FinalEnergy).
		Float64("final_score", report.FinalScore).
		Dur("duration", report.Duration).
		Msg("Run finished")

	if runErr != nil {
		return report, runErr
	}
	return report, nil
}

// refine runs the bounded loop and returns the terminal status.
func (e *Engine) refine(ctx context.Context, plan Plan, r runner, detector *convergence.Detector, report *Report, log zerolog.Logger) (domain.Status, *domain.RunError) {
	budget := plan.budget()
	for it := 1; it <= budget; it++ {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("iteration", it).Msg("Run canceled")
			return domain.StatusAborted, domain.NewRunError(domain.ErrCanceled, it, err)
		}

		entry, event, err := r.iterate(ctx, it, budget)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Warn().Int("iteration", it).Msg("Run canceled")
				return domain.StatusAborted, domain.NewRunError(domain.ErrCanceled, it, err)
			}
			kind := domain.ErrNumericInstability
			if errors.Is(err, domain.ErrInvalidProblemSpec) {
				kind = domain.ErrInvalidProblemSpec
			}
			log.Error().Err(err).Int("iteration", it).Msg("Run aborted")
			return domain.StatusAborted, domain.NewRunError(kind, it, err)
		}
		iterationsTotal.WithLabelValues(string(plan.Backend)).Inc()

		if event != nil {
			report.Feedback = append(report.Feedback, *event)
			for _, t := range event.Triggers {
				report.FeedbackStats[t]++
				feedbackEventsTotal.WithLabelValues(string(t)).Inc()
			}
			if plan.Hooks.OnFeedback != nil {
				plan.Hooks.OnFeedback(plan.RunID, *event)
			}
		}

		report.Evolution.Append(entry)
		e.notifyIteration(plan, entry)

		if it%progressEvery == 0 {
			log.Debug().
				Int("iteration", it).
				Float64("energy", entry.Energy).
				Float64("score", entry.Metrics.Score()).
				Msg("Refinement progress")
		}

		switch detector.Check(it-1, entry.Energy, plan.Target) {
		case convergence.Converged:
			return domain.StatusConverged, nil
		case convergence.BudgetExhausted:
			return domain.StatusBudgetExhausted, nil
		}
	}
	return domain.StatusBudgetExhausted, nil
}

func (e *Engine) notifyIteration(plan Plan, entry domain.EvolutionLogEntry) {
	if plan.Hooks.OnIteration != nil {
		plan.Hooks.OnIteration(plan.RunID, entry)
	}
}

// assemble derives the summary sections from the evolution log.
func (e *Engine) assemble(r *Report, detector *convergence.Detector, target convergence.Target) {
	evo := r.Evolution
	first, _ := evo.At(0)
	last, _ := evo.Last()

	r.Iterations = evo.Len() - 1
	r.Energies = evo.Energies()
	r.Metrics = evo.Metrics()
	r.InitialEnergy, r.FinalEnergy = first.Energy, last.Energy
	r.EnergyDelta = last.Energy - first.Energy
	r.InitialMetrics, r.FinalMetrics = first.Metrics, last.Metrics
	r.MetricDelta = last.Metrics.Sub(first.Metrics)
	r.InitialScore, r.FinalScore = first.Metrics.Score(), last.Metrics.Score()
	r.ScoreDelta = r.FinalScore - r.InitialScore

	conv := detector.FirstConvergence(r.Energies, target)
	r.Efficiency = Efficiency{
		ConvergenceIteration: conv,
		TotalIterations:      len(r.Energies),
		Ratio:                float64(conv) / float64(len(r.Energies)),
	}
	r.Validation = validate(r)

	r.CompletedAt = e.now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}
