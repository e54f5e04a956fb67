package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk thresholds in GB.
const (
	criticalFreeGB = 0.5
	lowFreeGB      = 5.0
	warnFreeGB     = 10.0
)

// maintenanceTimeout bounds the archive part of a maintenance pass.
const maintenanceTimeout = 5 * time.Minute

// RunPruner deletes stored runs.
type RunPruner interface {
	PruneBefore(t time.Time) (int64, error)
}

// Checkpointer flushes the write-ahead log.
type Checkpointer interface {
	WALCheckpoint(mode string) error
}

// ArchivePruner deletes archived reports.
type ArchivePruner interface {
	Enabled() bool
	PruneBefore(ctx context.Context, t time.Time) (int, error)
}

// MaintenanceJob performs the periodic run store maintenance: WAL checkpoint,
// retention of runs and archived reports, and a disk space check.
type MaintenanceJob struct {
	db        Checkpointer
	runs      RunPruner
	archive   ArchivePruner
	dataDir   string
	retention time.Duration
	now       func() time.Time
	usage     func(path string) (*disk.UsageStat, error)
	log       zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job. archive may be nil.
func NewMaintenanceJob(
	db Checkpointer,
	runs RunPruner,
	archive ArchivePruner,
	dataDir string,
	retentionDays int,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		db:        db,
		runs:      runs,
		archive:   archive,
		dataDir:   dataDir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		usage:     disk.Usage,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	// WAL checkpoint failures are not fatal
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.runs.PruneBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}

	archived := 0
	if j.archive != nil && j.archive.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		archived, err = j.archive.PruneBefore(ctx, cutoff)
		cancel()
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to prune archived reports")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Int64("runs_pruned", deleted).
		Int("reports_pruned", archived).
		Dur("duration", time.Since(startTime)).
		Msg("Maintenance completed")
	return nil
}

// checkDiskSpace verifies sufficient disk space is available
func (j *MaintenanceJob) checkDiskSpace() error {
	stat, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Float64("used_percent", stat.UsedPercent).Msg("Disk space check")

	switch {
	case availableGB < criticalFreeGB:
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("CRITICAL: only %.2f GB free", availableGB)
	case availableGB < lowFreeGB:
		j.log.Error().Float64("available_gb", availableGB).Msg("Low disk space - consider cleanup")
	case availableGB < warnFreeGB:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}
