package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/events"
	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	testhelpers "github.com/aristath/phaselock/internal/testing"
	"github.com/aristath/phaselock/internal/work"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type fakeQueue struct {
	jobs []*work.Job
	err  error
}

func (q *fakeQueue) Enqueue(job *work.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Pending() int { return len(q.jobs) }

type fakeArchiver struct {
	enabled  bool
	err      error
	runIDs   []string
	payloads [][]byte
}

func (a *fakeArchiver) Enabled() bool { return a.enabled }

func (a *fakeArchiver) Archive(_ context.Context, runID string, _ time.Time, payload []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.runIDs = append(a.runIDs, runID)
	a.payloads = append(a.payloads, payload)
	return "reports/" + runID + ".msgpack", nil
}

type fixture struct {
	service  *Service
	queue    *fakeQueue
	archiver *fakeArchiver
	events   *events.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewTestDB(t, "runs")
	log := zerolog.Nop()
	f := &fixture{
		queue:    &fakeQueue{},
		archiver: &fakeArchiver{enabled: true},
		events:   events.NewManager(log),
	}
	f.service = NewService(
		NewRepository(db.Conn(), log),
		orchestrator.NewEngine(log, orchestrator.WithWorkers(2)),
		f.queue,
		f.events,
		f.archiver,
		Defaults{},
		log,
	)
	return f
}

func meanFieldProblem(units int) ProblemDefinition {
	seed := uint64(3)
	return ProblemDefinition{
		Backend:              domain.BackendMeanField,
		Units:                units,
		Graph:                &GraphSpec{Kind: GraphRing},
		RefinementIterations: 5,
		Seed:                 &seed,
	}
}

func drain(ch <-chan events.Event) []events.EventType {
	var types []events.EventType
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestService_RunSyncExact(t *testing.T) {
	f := newFixture(t)
	seed := uint64(7)

	run, err := f.service.RunSync(context.Background(), ProblemDefinition{
		Backend:       domain.BackendExact,
		TargetPattern: "11",
		MaxIterations: 400,
		Seed:          &seed,
	})
	require.NoError(t, err)
	require.NotNil(t, run.Report)
	assert.True(t, run.Status.Terminal())
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, 2, run.Report.Units)

	evo, err := f.service.Evolution(run.ID)
	require.NoError(t, err)
	assert.Len(t, evo, run.Report.Iterations+1)
	assert.Equal(t, 0, evo[0].Iteration)
	assert.Equal(t, 4, evo[0].Snapshot.Dim)

	fb, err := f.service.Feedback(run.ID)
	require.NoError(t, err)
	assert.Len(t, fb, len(run.Report.Feedback))

	entry, err := f.service.EvolutionAt(run.ID, run.Report.Iterations)
	require.NoError(t, err)
	assert.InDelta(t, run.Report.FinalEnergy, entry.Energy, 1e-12)

	require.Len(t, f.archiver.payloads, 1)
	var archived orchestrator.Report
	require.NoError(t, msgpack.Unmarshal(f.archiver.payloads[0], &archived))
	assert.Equal(t, run.ID, archived.RunID)
}

func TestService_SubmitQueuesAndExecutes(t *testing.T) {
	f := newFixture(t)
	ch, unsubscribe := f.events.Subscribe()
	defer unsubscribe()

	run, err := f.service.Submit(meanFieldProblem(8))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, run.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, run.ID, f.queue.jobs[0].ID)

	stored, err := f.service.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.Report)

	require.NoError(t, f.queue.jobs[0].Execute(context.Background()))

	stored, err = f.service.Get(run.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.Terminal())
	require.NotNil(t, stored.Report)
	assert.Len(t, stored.Report.PhaseMap, 8)

	types := drain(ch)
	require.NotEmpty(t, types)
	assert.Equal(t, events.RunSubmitted, types[0])
	assert.Contains(t, types, events.RunStarted)
	assert.Equal(t, events.RunCompleted, types[len(types)-1])
}

func TestService_SubmitRejectsInvalidProblem(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Submit(ProblemDefinition{Backend: "annealer"})
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)

	_, err = f.service.Submit(ProblemDefinition{Backend: domain.BackendExact, TargetPattern: "10x"})
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)

	assert.Empty(t, f.queue.jobs)
	runs, err := f.service.List(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_SubmitQueueFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t)
	f.queue.err = work.ErrStopped

	_, err := f.service.Submit(meanFieldProblem(4))
	require.ErrorIs(t, err, work.ErrStopped)

	runs, err := f.service.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusFailed, runs[0].Status)
}

func TestService_CanceledRunIsStoredAsAborted(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	def := meanFieldProblem(6)
	def.RefinementPolicy = string(orchestrator.PolicyAlways)

	run, err := f.service.RunSync(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAborted, run.Status)
	assert.Equal(t, "canceled", run.ErrorKind)
	require.NotNil(t, run.ErrorIteration)
	assert.Equal(t, 1, *run.ErrorIteration)
}

func TestService_ArchiveFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.archiver.err = errors.New("bucket unavailable")
	ch, unsubscribe := f.events.Subscribe()
	defer unsubscribe()

	run, err := f.service.RunSync(context.Background(), meanFieldProblem(6))
	require.NoError(t, err)
	assert.NotEqual(t, domain.StatusFailed, run.Status)
	assert.Contains(t, drain(ch), events.ErrorOccurred)
}

func TestService_ArchiverDisabled(t *testing.T) {
	f := newFixture(t)
	f.archiver.enabled = false

	_, err := f.service.RunSync(context.Background(), meanFieldProblem(6))
	require.NoError(t, err)
	assert.Empty(t, f.archiver.runIDs)
}

func TestService_Voltages(t *testing.T) {
	f := newFixture(t)

	run, err := f.service.RunSync(context.Background(), meanFieldProblem(8))
	require.NoError(t, err)

	rows, verification, err := f.service.Voltages(run.ID, hardware.DefaultVoltageMapper())
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.True(t, verification.Passed())
	assert.Equal(t, 8, verification.Channels)
	for i, r := range rows {
		assert.Equal(t, i, r.Channel)
		assert.LessOrEqual(t, r.Voltage, hardware.DefaultVMax)
	}
}

func TestService_VoltagesNotReady(t *testing.T) {
	f := newFixture(t)

	run, err := f.service.Submit(meanFieldProblem(4))
	require.NoError(t, err)

	_, _, err = f.service.Voltages(run.ID, hardware.DefaultVoltageMapper())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestService_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.service.Evolution("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.service.Feedback("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.service.EvolutionAt("missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ResumeRequeuesUnfinishedRuns(t *testing.T) {
	f := newFixture(t)

	pending, err := f.service.Submit(meanFieldProblem(4))
	require.NoError(t, err)
	running, err := f.service.Submit(meanFieldProblem(5))
	require.NoError(t, err)
	require.NoError(t, f.service.repo.SetStatus(running.ID, domain.StatusRunning))
	done, err := f.service.RunSync(context.Background(), meanFieldProblem(4))
	require.NoError(t, err)

	// A restarted process starts with an empty queue.
	f.queue.jobs = nil

	n, err := f.service.Resume()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, f.queue.jobs, 2)
	ids := []string{f.queue.jobs[0].ID, f.queue.jobs[1].ID}
	assert.ElementsMatch(t, []string{pending.ID, running.ID}, ids)

	stored, err := f.service.Get(running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	for _, job := range f.queue.jobs {
		require.NoError(t, job.Execute(context.Background()))
	}
	stored, err = f.service.Get(running.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.Terminal())

	stored, err = f.service.Get(done.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.Terminal())
}
