package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/events"
	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/aristath/phaselock/internal/work"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotReady is returned when a run has not produced the requested output yet.
var ErrNotReady = errors.New("run not finished")

// moduleName tags emitted events.
const moduleName = "runs"

// Engine runs plans.
type Engine interface {
	Run(ctx context.Context, plan orchestrator.Plan) (*orchestrator.Report, error)
}

// Queue accepts jobs for background execution.
type Queue interface {
	Enqueue(job *work.Job) error
	Pending() int
}

// Service submits, executes and looks up runs.
type Service struct {
	repo     *Repository
	engine   Engine
	queue    Queue
	events   *events.Manager
	archiver domain.ReportArchiver
	defaults Defaults
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a run service. archiver may be nil.
func NewService(
	repo *Repository,
	engine Engine,
	queue Queue,
	eventManager *events.Manager,
	archiver domain.ReportArchiver,
	defaults Defaults,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		queue:    queue,
		events:   eventManager,
		archiver: archiver,
		defaults: defaults,
		now:      time.Now,
		log:      log.With().Str("service", "runs").Logger(),
	}
}

// Submit validates def, stores a pending run and queues it.
func (s *Service) Submit(def ProblemDefinition) (*Run, error) {
	run, err := s.create(def)
	if err != nil {
		return nil, err
	}

	err = s.queue.Enqueue(&work.Job{
		ID: run.ID,
		Execute: func(ctx context.Context) error {
			return s.execute(ctx, run.ID, def)
		},
	})
	if err != nil {
		_ = s.repo.CompleteRun(run.ID, domain.StatusFailed, nil, err, s.now())
		return nil, fmt.Errorf("failed to queue run: %w", err)
	}

	s.events.Emit(moduleName, &events.RunSubmittedData{
		RunID:   run.ID,
		Backend: string(run.Backend),
		Units:   def.Units,
		Pending: s.queue.Pending(),
	})
	return run, nil
}

// Resume queues the runs a previous process left pending or running. Runs
// restart from their problem definition.
func (s *Service) Resume() (int, error) {
	unfinished, err := s.repo.ListUnfinished()
	if err != nil {
		return 0, err
	}

	for _, run := range unfinished {
		id, def := run.ID, run.Problem
		if err := s.repo.ClearLogs(id); err != nil {
			return 0, err
		}
		if err := s.repo.SetStatus(id, domain.StatusPending); err != nil {
			return 0, err
		}
		err := s.queue.Enqueue(&work.Job{
			ID: id,
			Execute: func(ctx context.Context) error {
				return s.execute(ctx, id, def)
			},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to requeue run %s: %w", id, err)
		}
	}

	if len(unfinished) > 0 {
		s.log.Info().Int("runs", len(unfinished)).Msg("Resumed unfinished runs")
	}
	return len(unfinished), nil
}

// RunSync executes def inline and returns the stored run. Engine aborts are
// reflected in the run status, not in the error.
func (s *Service) RunSync(ctx context.Context, def ProblemDefinition) (*Run, error) {
	run, err := s.create(def)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, run.ID, def); err != nil && !isEngineError(err) {
		return nil, err
	}
	return s.repo.GetRun(run.ID)
}

func (s *Service) create(def ProblemDefinition) (*Run, error) {
	// Build the plan once up front so bad definitions never reach the queue.
	if _, err := def.Plan(s.defaults); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Backend:   def.Backend,
		Status:    domain.StatusPending,
		Problem:   def,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

// execute runs one stored problem and persists the outcome.
func (s *Service) execute(ctx context.Context, id string, def ProblemDefinition) error {
	plan, err := def.Plan(s.defaults)
	if err != nil {
		return s.fail(id, err)
	}
	plan.RunID = id
	plan.Hooks.OnFeedback = func(runID string, ev domain.FeedbackEvent) {
		triggers := make([]string, len(ev.Triggers))
		for i, t := range ev.Triggers {
			triggers[i] = string(t)
		}
		s.events.Emit(moduleName, &events.FeedbackAppliedData{
			RunID:       runID,
			Iteration:   ev.Iteration,
			Triggers:    triggers,
			EnergyDelta: ev.EnergyDelta,
		})
	}

	if err := s.repo.SetStatus(id, domain.StatusRunning); err != nil {
		return err
	}
	s.events.Emit(moduleName, &events.RunStartedData{RunID: id, Backend: string(def.Backend)})

	report, runErr := s.engine.Run(ctx, plan)
	if report == nil {
		return s.fail(id, runErr)
	}

	if err := s.repo.AppendEvolution(id, report.Evolution.Entries()); err != nil {
		return err
	}
	if err := s.repo.AppendFeedback(id, report.Feedback); err != nil {
		return err
	}
	if err := s.repo.CompleteRun(id, report.Status, report, runErr, report.CompletedAt); err != nil {
		return err
	}
	s.archive(ctx, id, report)

	if runErr != nil {
		s.emitFailed(id, runErr)
		return runErr
	}
	s.events.Emit(moduleName, &events.RunCompletedData{
		RunID:       id,
		Status:      string(report.Status),
		Iterations:  report.Iterations,
		FinalEnergy: report.FinalEnergy,
		FinalScore:  report.FinalScore,
		DurationMs:  report.Duration.Milliseconds(),
	})
	return nil
}

// fail records a run that produced no report.
func (s *Service) fail(id string, runErr error) error {
	if err := s.repo.CompleteRun(id, domain.StatusFailed, nil, runErr, s.now()); err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to record run failure")
	}
	s.emitFailed(id, runErr)
	return runErr
}

func (s *Service) emitFailed(id string, runErr error) {
	data := &events.RunFailedData{
		RunID:     id,
		Kind:      domain.KindName(runErr),
		Iteration: -1,
		Error:     runErr.Error(),
	}
	var re *domain.RunError
	if errors.As(runErr, &re) {
		data.Iteration = re.Iteration
	}
	s.events.Emit(moduleName, data)
}

// archive uploads the encoded report. Failures are reported, not returned:
// the run itself is already stored.
func (s *Service) archive(ctx context.Context, id string, report *orchestrator.Report) {
	if s.archiver == nil || !s.archiver.Enabled() {
		return
	}
	payload, err := msgpack.Marshal(report)
	if err == nil {
		var key string
		key, err = s.archiver.Archive(ctx, id, report.StartedAt, payload)
		if err == nil {
			s.log.Debug().Str("run_id", id).Str("key", key).Msg("Report archived")
			return
		}
	}
	s.log.Error().Err(err).Str("run_id", id).Msg("Failed to archive report")
	s.events.EmitError(moduleName, err, map[string]interface{}{"run_id": id, "stage": "archive"})
}

// Get returns a stored run.
func (s *Service) Get(id string) (*Run, error) {
	return s.repo.GetRun(id)
}

// List returns recent runs.
func (s *Service) List(limit int) ([]Run, error) {
	return s.repo.ListRuns(limit)
}

// Evolution returns the evolution log of a run.
func (s *Service) Evolution(id string) ([]domain.EvolutionLogEntry, error) {
	if _, err := s.repo.GetRun(id); err != nil {
		return nil, err
	}
	return s.repo.GetEvolution(id)
}

// EvolutionAt returns one entry of the evolution log.
func (s *Service) EvolutionAt(id string, iteration int) (*domain.EvolutionLogEntry, error) {
	return s.repo.GetEvolutionAt(id, iteration)
}

// Feedback returns the feedback log of a run.
func (s *Service) Feedback(id string) ([]domain.FeedbackEvent, error) {
	if _, err := s.repo.GetRun(id); err != nil {
		return nil, err
	}
	return s.repo.GetFeedback(id)
}

// Voltages converts the phase map of a finished run and verifies the result.
func (s *Service) Voltages(id string, mapper hardware.VoltageMapper) ([]hardware.Row, *hardware.Verification, error) {
	run, err := s.repo.GetRun(id)
	if err != nil {
		return nil, nil, err
	}
	if run.Report == nil || len(run.Report.PhaseMap) == 0 {
		return nil, nil, fmt.Errorf("run %s is %s: %w", id, run.Status, ErrNotReady)
	}

	rows, err := mapper.Map(run.Report.PhaseMap)
	if err != nil {
		return nil, nil, err
	}
	lim := hardware.Limits{VMax: mapper.VMax, DACMax: mapper.DACMax(), Channels: len(rows)}
	return rows, hardware.Verify(hardware.TableOf(rows), lim), nil
}

// isEngineError reports whether err came out of the engine rather than
// storage.
func isEngineError(err error) bool {
	var re *domain.RunError
	return errors.As(err, &re) ||
		errors.Is(err, domain.ErrInvalidProblemSpec) ||
		errors.Is(err, domain.ErrDegenerateInitialization) ||
		errors.Is(err, domain.ErrNumericInstability)
}
