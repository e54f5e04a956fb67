package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/phaselock/internal/database"
	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a run or log entry does not exist.
var ErrNotFound = errors.New("not found")

// Run is a stored run.
type Run struct {
	ID             string               `json:"id"`
	Backend        domain.Backend       `json:"backend"`
	Status         domain.Status        `json:"status"`
	Problem        ProblemDefinition    `json:"problem"`
	Report         *orchestrator.Report `json:"report,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	ErrorKind      string               `json:"error_kind,omitempty"`
	ErrorIteration *int                 `json:"error_iteration,omitempty"`
}

// runsColumns is the column list of the runs table, in scanRun order.
const runsColumns = `id, backend, status, problem_json, report_msgpack, created_at, completed_at, error_kind, error_iteration`

// Repository handles run database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// CreateRun inserts a pending run
func (r *Repository) CreateRun(run *Run) error {
	problem, err := json.Marshal(run.Problem)
	if err != nil {
		return fmt.Errorf("failed to encode problem: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO runs (id, backend, status, problem_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, string(run.Backend), string(run.Status), string(problem), run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	r.log.Debug().Str("run_id", run.ID).Str("backend", string(run.Backend)).Msg("Run created")
	return nil
}

// SetStatus updates the status of a run that has not finished
func (r *Repository) SetStatus(id string, status domain.Status) error {
	res, err := r.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return expectRow(res, id)
}

// CompleteRun stores the final report, or the failure of a run that produced
// none. runErr is nil for successful runs.
func (r *Repository) CompleteRun(id string, status domain.Status, report *orchestrator.Report, runErr error, completedAt time.Time) error {
	var blob []byte
	if report != nil {
		var err error
		if blob, err = msgpack.Marshal(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	}

	var (
		kind      sql.NullString
		iteration sql.NullInt64
	)
	if runErr != nil {
		kind = sql.NullString{String: domain.KindName(runErr), Valid: true}
		var re *domain.RunError
		if errors.As(runErr, &re) {
			iteration = sql.NullInt64{Int64: int64(re.Iteration), Valid: true}
		}
	}

	res, err := r.db.Exec(`
		UPDATE runs
		SET status = ?, report_msgpack = ?, completed_at = ?, error_kind = ?, error_iteration = ?
		WHERE id = ?
	`, string(status), blob, completedAt.UnixMilli(), kind, iteration, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return expectRow(res, id)
}

// AppendEvolution stores log entries in one transaction
func (r *Repository) AppendEvolution(runID string, entries []domain.EvolutionLogEntry) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO evolution_log (run_id, iteration, energy, metrics_json, snapshot)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare evolution insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			metrics, err := json.Marshal(e.Metrics)
			if err != nil {
				return fmt.Errorf("failed to encode metrics of iteration %d: %w", e.Iteration, err)
			}
			snap, err := msgpack.Marshal(e.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to encode snapshot of iteration %d: %w", e.Iteration, err)
			}
			if _, err := stmt.Exec(runID, e.Iteration, e.Energy, string(metrics), snap); err != nil {
				return fmt.Errorf("failed to insert iteration %d: %w", e.Iteration, err)
			}
		}
		return nil
	})
}

// AppendFeedback stores feedback events in one transaction
func (r *Repository) AppendFeedback(runID string, events []domain.FeedbackEvent) error {
	if len(events) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, ev := range events {
			triggers := make([]string, len(ev.Triggers))
			for i, t := range ev.Triggers {
				triggers[i] = string(t)
			}
			_, err := tx.Exec(`
				INSERT INTO feedback_log (run_id, iteration, triggers, energy_delta, boosted, refocused, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, runID, ev.Iteration, strings.Join(triggers, ","), ev.EnergyDelta, ev.Boosted, ev.Refocused, ev.Timestamp.UnixMilli())
			if err != nil {
				return fmt.Errorf("failed to insert feedback at iteration %d: %w", ev.Iteration, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run with its report
func (r *Repository) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow("SELECT "+runsColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without reports
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, backend, status, problem_json, NULL, created_at, completed_at, error_kind, error_iteration
		FROM runs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// ListUnfinished returns pending and running runs, oldest first, without
// reports
func (r *Repository) ListUnfinished() ([]Run, error) {
	rows, err := r.db.Query(`
		SELECT id, backend, status, problem_json, NULL, created_at, completed_at, error_kind, error_iteration
		FROM runs WHERE status IN (?, ?) ORDER BY created_at, id
	`, string(domain.StatusPending), string(domain.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// GetEvolution returns the evolution log of a run in iteration order
func (r *Repository) GetEvolution(runID string) ([]domain.EvolutionLogEntry, error) {
	rows, err := r.db.Query(`
		SELECT iteration, energy, metrics_json, snapshot
		FROM evolution_log WHERE run_id = ? ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evolution log: %w", err)
	}
	defer rows.Close()

	var out []domain.EvolutionLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEvolutionAt returns one log entry
func (r *Repository) GetEvolutionAt(runID string, iteration int) (*domain.EvolutionLogEntry, error) {
	row := r.db.QueryRow(`
		SELECT iteration, energy, metrics_json, snapshot
		FROM evolution_log WHERE run_id = ? AND iteration = ?
	`, runID, iteration)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s iteration %d: %w", runID, iteration, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetFeedback returns the feedback log of a run in iteration order
func (r *Repository) GetFeedback(runID string) ([]domain.FeedbackEvent, error) {
	rows, err := r.db.Query(`
		SELECT iteration, triggers, energy_delta, boosted, refocused, created_at
		FROM feedback_log WHERE run_id = ? ORDER BY iteration, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback log: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedbackEvent
	for rows.Next() {
		var (
			ev       domain.FeedbackEvent
			triggers string
			ts       int64
		)
		if err := rows.Scan(&ev.Iteration, &triggers, &ev.EnergyDelta, &ev.Boosted, &ev.Refocused, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		for _, t := range strings.Split(triggers, ",") {
			if t != "" {
				ev.Triggers = append(ev.Triggers, domain.Trigger(t))
			}
		}
		ev.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ClearLogs drops the evolution and feedback logs of a run
func (r *Repository) ClearLogs(runID string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM evolution_log WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear evolution log of %s: %w", runID, err)
		}
		if _, err := tx.Exec(`DELETE FROM feedback_log WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear feedback log of %s: %w", runID, err)
		}
		return nil
	})
}

// PruneBefore deletes runs created before t, with their logs
func (r *Repository) PruneBefore(t time.Time) (int64, error) {
	var deleted int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		cutoff := t.UnixMilli()
		old := `SELECT id FROM runs WHERE created_at < ?`
		if _, err := tx.Exec(`DELETE FROM evolution_log WHERE run_id IN (`+old+`)`, cutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM feedback_log WHERE run_id IN (`+old+`)`, cutoff); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Time("before", t).Msg("Pruned old runs")
	}
	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run         Run
		backend     string
		status      string
		problem     string
		report      []byte
		createdAt   int64
		completedAt sql.NullInt64
		errorKind   sql.NullString
		errorIter   sql.NullInt64
	)
	if err := s.Scan(&run.ID, &backend, &status, &problem, &report, &createdAt, &completedAt, &errorKind, &errorIter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Backend = domain.Backend(backend)
	run.Status = domain.Status(status)
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(problem), &run.Problem); err != nil {
		return nil, fmt.Errorf("failed to decode problem of run %s: %w", run.ID, err)
	}
	if len(report) > 0 {
		run.Report = &orchestrator.Report{}
		if err := msgpack.Unmarshal(report, run.Report); err != nil {
			return nil, fmt.Errorf("failed to decode report of run %s: %w", run.ID, err)
		}
	}
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		run.CompletedAt = &t
	}
	run.ErrorKind = errorKind.String
	if errorIter.Valid {
		it := int(errorIter.Int64)
		run.ErrorIteration = &it
	}
	return &run, nil
}

func scanEntry(s scanner) (domain.EvolutionLogEntry, error) {
	var (
		e       domain.EvolutionLogEntry
		metrics string
		snap    []byte
	)
	if err := s.Scan(&e.Iteration, &e.Energy, &metrics, &snap); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan evolution entry: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
		return e, fmt.Errorf("failed to decode metrics of iteration %d: %w", e.Iteration, err)
	}
	if err := msgpack.Unmarshal(snap, &e.Snapshot); err != nil {
		return e, fmt.Errorf("failed to decode snapshot of iteration %d: %w", e.Iteration, err)
	}
	return e, nil
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}
