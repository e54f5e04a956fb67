package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aristath/phaselock/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cli holds the flags shared by every command.
type cli struct {
	logLevel string
	log      zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "phaselock",
		Short:         "Adaptive phase-locking engine",
		Long:          `phaselock minimizes the energy of a cost operator or a coupling graph and exports the resulting phase map for a modulator array.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.log = logger.New(logger.Config{
				Level:  c.logLevel,
				Pretty: true,
				Output: cmd.ErrOrStderr(),
			})
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		c.newRunCmd(),
		c.newVoltageMapCmd(),
		c.newVerifyVoltagesCmd(),
	)
	return rootCmd
}

// writeOutput runs write against stdout, or against path when one is given.
// The file is closed before returning so a failed flush is reported.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
