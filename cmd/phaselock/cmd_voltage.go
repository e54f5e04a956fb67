package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/spf13/cobra"
)

func (c *cli) newVoltageMapCmd() *cobra.Command {
	var reportPath, outPath string
	mapper := hardware.DefaultVoltageMapper()

	cmd := &cobra.Command{
		Use:   "voltage-map",
		Short: "Convert the phase map of a report into a voltage table",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(reportPath)
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}
			var report orchestrator.Report
			if err := json.Unmarshal(data, &report); err != nil {
				return fmt.Errorf("failed to parse report %s: %w", reportPath, err)
			}
			if len(report.PhaseMap) == 0 {
				return fmt.Errorf("report %s has no phase map", reportPath)
			}

			rows, err := mapper.Map(report.PhaseMap)
			if err != nil {
				return err
			}

			err = writeOutput(cmd, outPath, func(w io.Writer) error {
				return hardware.WriteCSV(w, rows)
			})
			if err != nil {
				return err
			}

			c.log.Info().
				Str("run_id", report.RunID).
				Int("channels", len(rows)).
				Float64("v_pi", mapper.VPi).
				Float64("v_max", mapper.VMax).
				Msg("Voltage map written")
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "Report JSON written by 'phaselock run'")
	cmd.Flags().StringVar(&outPath, "out", "", "CSV output file (defaults to stdout)")
	cmd.Flags().Float64Var(&mapper.VPi, "vpi", hardware.DefaultVPi, "Half-wave voltage Vπ")
	cmd.Flags().Float64Var(&mapper.VBias, "vbias", hardware.DefaultVBias, "Bias voltage")
	cmd.Flags().Float64Var(&mapper.VMax, "vmax", hardware.DefaultVMax, "Maximum drive voltage")
	cmd.Flags().IntVar(&mapper.DACBits, "dac-bits", hardware.DefaultDACBits, "DAC resolution in bits")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func (c *cli) newVerifyVoltagesCmd() *cobra.Command {
	var csvPath string
	lim := hardware.DefaultLimits(0)

	cmd := &cobra.Command{
		Use:   "verify-voltages",
		Short: "Check a voltage table against the hardware limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", csvPath, err)
			}
			defer f.Close()

			table, err := hardware.ReadCSV(f)
			if err != nil {
				return err
			}
			v := hardware.Verify(table, lim)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "channels: %d\n", v.Channels)
			fmt.Fprintf(out, "voltage: min %.4fV max %.4fV mean %.4fV\n", v.MinVoltage, v.MaxVoltage, v.MeanVoltage)
			for _, finding := range v.Findings {
				fmt.Fprintf(out, "%s line %d: %s\n", finding.Severity, finding.Line, finding.Message)
			}

			if !v.Passed() {
				c.log.Error().Int("critical", v.Count(hardware.SeverityCritical)).Msg("Voltage table failed verification")
				return fmt.Errorf("%d critical violations", v.Count(hardware.SeverityCritical))
			}
			c.log.Info().Int("warnings", v.Count(hardware.SeverityWarning)).Msg("Voltage table passed verification")
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Voltage table CSV")
	cmd.Flags().IntVar(&lim.Channels, "channels", 0, "Expected channel count (0 skips the check)")
	cmd.Flags().Float64Var(&lim.VMax, "vmax", lim.VMax, "Maximum drive voltage")
	cmd.Flags().IntVar(&lim.DACMax, "dac-max", lim.DACMax, "Largest DAC code")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
