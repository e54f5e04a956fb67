package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aristath/phaselock/internal/di"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/aristath/phaselock/internal/modules/runs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (c *cli) newRunCmd() *cobra.Command {
	var problemPath, outPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a problem locally and write its report",
		Long: `Runs the problem described by --problem (YAML or JSON) in-process.
Without --problem the default 56-unit small-world mean-field problem runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			def := runs.DefaultProblem()
			if problemPath != "" {
				var err error
				if def, err = loadProblem(problemPath); err != nil {
					return err
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, runErr := c.runProblem(ctx, def, cfg.Engine)
			if report == nil {
				return runErr
			}

			err = writeOutput(cmd, outPath, func(w io.Writer) error {
				return writeReport(w, report)
			})
			if err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&problemPath, "problem", "", "Problem definition file (YAML)")
	cmd.Flags().StringVar(&outPath, "out", "", "Report output file (defaults to stdout)")
	return cmd
}

func (c *cli) runProblem(ctx context.Context, def runs.ProblemDefinition, engineCfg config.EngineConfig) (*orchestrator.Report, error) {
	plan, err := def.Plan(di.EngineDefaults(engineCfg))
	if err != nil {
		return nil, err
	}
	plan.RunID = uuid.NewString()

	engine := orchestrator.NewEngine(c.log, orchestrator.WithWorkers(engineCfg.Workers))
	return engine.Run(ctx, plan)
}

// loadProblem reads a problem definition. JSON is valid YAML.
func loadProblem(path string) (runs.ProblemDefinition, error) {
	var def runs.ProblemDefinition
	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read problem: %w", err)
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("failed to parse problem %s: %w", path, err)
	}
	return def, nil
}

func writeReport(w io.Writer, report *orchestrator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
