package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const problemYAML = `backend: mean_field
units: 6
graph:
  kind: ring
refinement_iterations: 4
seed: 11
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PHASELOCK_DATA_DIR", t.TempDir())

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunVoltageMapVerify(t *testing.T) {
	dir := t.TempDir()
	problem := writeFile(t, "problem.yaml", problemYAML)
	reportPath := filepath.Join(dir, "report.json")
	csvPath := filepath.Join(dir, "map.csv")

	_, err := execute(t, "run", "--problem", problem, "--out", reportPath)
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report orchestrator.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 6, report.Units)
	assert.Len(t, report.PhaseMap, 6)
	assert.True(t, report.Status.Terminal())

	_, err = execute(t, "voltage-map", "--report", reportPath, "--out", csvPath)
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	table, err := hardware.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, hardware.Header, table.Header)
	assert.Len(t, table.Records, 6)

	out, err := execute(t, "verify-voltages", "--csv", csvPath, "--channels", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "channels: 6")
}

func TestRunWritesReportToStdout(t *testing.T) {
	problem := writeFile(t, "problem.yaml", `{"backend": "exact", "target_pattern": "10", "max_iterations": 30}`)

	out, err := execute(t, "run", "--problem", problem)
	require.NoError(t, err)

	var report orchestrator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Units)
	assert.NotNil(t, report.Analytics)
}

func TestRunRejectsInvalidProblem(t *testing.T) {
	problem := writeFile(t, "problem.yaml", "backend: annealer\n")

	_, err := execute(t, "run", "--problem", problem)
	assert.ErrorContains(t, err, "invalid problem spec")

	_, err = execute(t, "run", "--problem", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVerifyVoltagesFailsOnCritical(t *testing.T) {
	csv := writeFile(t, "map.csv", strings.Join([]string{
		"Channel_ID,Phase_Rad,Voltage_V,DAC_Value_16bit",
		"0,1.0,0.8276,6780",
		"1,6.0,9.5000,70000",
	}, "\n")+"\n")

	out, err := execute(t, "verify-voltages", "--csv", csv)
	assert.ErrorContains(t, err, "critical")
	assert.Contains(t, out, "CRITICAL")
}

func TestVoltageMapRequiresPhaseMap(t *testing.T) {
	report := writeFile(t, "report.json", `{"run_id": "r1", "phase_map": []}`)

	_, err := execute(t, "voltage-map", "--report", report)
	assert.ErrorContains(t, err, "no phase map")
}

func TestWriteOutput(t *testing.T) {
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)

	write := func(w io.Writer) error {
		_, err := io.WriteString(w, "channel,phase\n")
		return err
	}

	require.NoError(t, writeOutput(cmd, "", write))
	assert.Equal(t, "channel,phase\n", stdout.String())

	path := filepath.Join(t.TempDir(), "map.csv")
	require.NoError(t, writeOutput(cmd, path, write))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "channel,phase\n", string(data))

	failed := errors.New("disk full")
	err = writeOutput(cmd, path, func(io.Writer) error { return failed })
	assert.ErrorIs(t, err, failed)

	err = writeOutput(cmd, filepath.Join(t.TempDir(), "missing", "map.csv"), write)
	assert.ErrorContains(t, err, "failed to create")
}

func TestWriteOutputReportsCloseError(t *testing.T) {
	// The callback closes the file itself, so the final close fails.
	cmd := newRootCmd()
	path := filepath.Join(t.TempDir(), "report.json")
	err := writeOutput(cmd, path, func(w io.Writer) error {
		return w.(*os.File).Close()
	})
	assert.ErrorContains(t, err, "failed to close")
}
