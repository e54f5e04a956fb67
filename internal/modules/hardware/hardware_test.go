package hardware

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltageMapper_Map(t *testing.T) {
	m := DefaultVoltageMapper()
	rows, err := m.Map([]float64{0, math.Pi, 2 * math.Pi})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 0, rows[0].Channel)
	assert.InDelta(t, 0.0, rows[0].Voltage, 1e-12)
	assert.Equal(t, 0, rows[0].DAC)

	assert.InDelta(t, 2.6, rows[1].Voltage, 1e-12)
	assert.Equal(t, int(2.6/8.0*65535), rows[1].DAC)

	assert.Equal(t, 2, rows[2].Channel)
	assert.InDelta(t, 5.2, rows[2].Voltage, 1e-12)
}

func TestVoltageMapper_ClampsToVMax(t *testing.T) {
	m := VoltageMapper{VPi: 10, VBias: 1, VMax: 8, DACBits: 12}
	rows, err := m.Map([]float64{2 * math.Pi})
	require.NoError(t, err)
	assert.InDelta(t, 8.0, rows[0].Voltage, 1e-12)
	assert.Equal(t, 4095, rows[0].DAC)

	// Negative bias clamps to zero.
	m.VBias = -3
	rows, err = m.Map([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rows[0].Voltage)
	assert.Equal(t, 0, rows[0].DAC)
}

func TestVoltageMapper_Rejects(t *testing.T) {
	_, err := VoltageMapper{VPi: 0, VMax: 8, DACBits: 16}.Map([]float64{0})
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)

	_, err = DefaultVoltageMapper().Map([]float64{math.NaN()})
	assert.ErrorIs(t, err, domain.ErrInvalidProblemSpec)
}

func TestCSV_RoundTripVerifies(t *testing.T) {
	rows, err := DefaultVoltageMapper().Map([]float64{0.1, 1.2, 3.3, 6.0})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "Channel_ID,Phase_Rad,Voltage_V,DAC_Value_16bit\n"))

	table, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, table.Records, 4)
	assert.Equal(t, 2, table.Records[0].Line)

	v := Verify(table, DefaultLimits(4))
	assert.True(t, v.Passed())
	assert.Empty(t, v.Findings)
	assert.Equal(t, 4, v.Channels)
	assert.InDelta(t, rows[3].Voltage, v.MaxVoltage, 1e-12)
}

func TestVerify_Findings(t *testing.T) {
	input := strings.Join([]string{
		"Channel_ID,Phase_Rad,Voltage_V,DAC_Value_16bit",
		"0,0.5,0.41,3358",
		"1,7.0,9.10,70000",
		"3,-0.1,-0.2,0",
		"x,1,1,1",
		"4,1,1",
	}, "\n")

	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	v := Verify(table, DefaultLimits(8))
	assert.False(t, v.Passed())

	// Voltage and DAC over the limit on channel 1, plus two parse errors.
	assert.Equal(t, 4, v.Count(SeverityCritical))
	// Phase out of range twice, negative voltage, sequence gap, channel count.
	assert.Equal(t, 5, v.Count(SeverityWarning))

	var critical []string
	for _, f := range v.Findings {
		if f.Severity == SeverityCritical {
			critical = append(critical, f.Message)
		}
	}
	assert.Contains(t, critical[0], "exceeds V_max")
	assert.Contains(t, critical[1], "out of range")
	assert.Contains(t, critical[2], "parse error")
}

func TestVerify_WarningsOnlyStillPass(t *testing.T) {
	table := &Table{
		Header:  []string{"ch", "phase", "v", "dac"},
		Records: []Record{{Line: 2, Fields: []string{"0", "1", "-0.5", "0"}}},
	}
	v := Verify(table, DefaultLimits(0))
	assert.True(t, v.Passed())
	assert.Equal(t, 2, v.Count(SeverityWarning))
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestTableOf(t *testing.T) {
	rows := []Row{{Channel: 0, Phase: 1, Voltage: 0.8, DAC: 6553}}
	v := Verify(TableOf(rows), DefaultLimits(1))
	assert.True(t, v.Passed())
	assert.Empty(t, v.Findings)
}
