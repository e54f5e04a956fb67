package di

import (
	"fmt"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aristath/phaselock/internal/reliability"
	"github.com/aristath/phaselock/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers the periodic jobs
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(log)

	container.MaintenanceJob = reliability.NewMaintenanceJob(
		container.RunsDB,
		container.RunRepo,
		container.Archiver,
		cfg.DataDir,
		cfg.RunRetentionDays,
		log,
	)
	if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, container.MaintenanceJob); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	return nil
}
