package di

import (
	"context"
	"fmt"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aristath/phaselock/internal/events"
	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/aristath/phaselock/internal/modules/runs"
	"github.com/aristath/phaselock/internal/reliability"
	"github.com/aristath/phaselock/internal/work"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	container.RunRepo = runs.NewRepository(container.RunsDB.Conn(), log)
	return nil
}

// InitializeServices creates the engine, the queue and the run service
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventManager = events.NewManager(log)
	container.Engine = orchestrator.NewEngine(log, orchestrator.WithWorkers(cfg.Engine.Workers))
	container.Processor = work.NewProcessor(log)
	container.VoltageMapper = hardware.DefaultVoltageMapper()

	archiver, err := reliability.NewS3Archiver(ctx, cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("failed to create report archiver: %w", err)
	}
	container.Archiver = archiver

	container.RunService = runs.NewService(
		container.RunRepo,
		container.Engine,
		container.Processor,
		container.EventManager,
		archiver,
		EngineDefaults(cfg.Engine),
		log,
	)
	return nil
}

// EngineDefaults converts the engine configuration into run defaults.
func EngineDefaults(e config.EngineConfig) runs.Defaults {
	return runs.Defaults{
		MaxIterations:        e.MaxIterations,
		Tolerance:            e.Tolerance,
		RefinementIterations: e.RefinementIterations,
		ScoreThreshold:       e.ScoreThreshold,
		LearningRate:         e.LearningRate,
		Shots:                e.Shots,
		Seed:                 e.Seed,
	}
}
