// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived instance of the application and is
// passed to the HTTP server and the CLI.
package di

import (
	"github.com/aristath/phaselock/internal/database"
	"github.com/aristath/phaselock/internal/events"
	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/aristath/phaselock/internal/modules/runs"
	"github.com/aristath/phaselock/internal/reliability"
	"github.com/aristath/phaselock/internal/scheduler"
	"github.com/aristath/phaselock/internal/work"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	RunsDB *database.DB

	// Repositories
	RunRepo *runs.Repository

	// Services
	EventManager  *events.Manager
	Engine        *orchestrator.Engine
	Archiver      *reliability.S3Archiver
	RunService    *runs.Service
	VoltageMapper hardware.VoltageMapper

	// Background work
	Processor      *work.Processor
	Scheduler      *scheduler.Scheduler
	MaintenanceJob *reliability.MaintenanceJob
}

// Close releases the databases.
func (c *Container) Close() error {
	if c.RunsDB != nil {
		return c.RunsDB.Close()
	}
	return nil
}
