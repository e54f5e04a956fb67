// Package hardware converts a phase map into modulator drive voltages and
// DAC codes, and checks voltage tables before they reach a device.
package hardware

import (
	"fmt"
	"math"

	"github.com/aristath/phaselock/internal/domain"
)

// Defaults for lithium niobate phase modulators.
const (
	DefaultVPi     = 5.2
	DefaultVBias   = 0.0
	DefaultVMax    = 8.0
	DefaultDACBits = 16
)

// Row is one channel of a voltage map.
type Row struct {
	Channel int     `json:"channel_id"`
	Phase   float64 `json:"phase_rad"`
	Voltage float64 `json:"voltage_v"`
	DAC     int     `json:"dac_value"`
}

// VoltageMapper maps phases linearly onto drive voltages: V = θ/2π·Vπ + Vbias,
// clamped to [0, VMax] and quantized onto a DACBits-wide code.
type VoltageMapper struct {
	VPi     float64
	VBias   float64
	VMax    float64
	DACBits int
}

// DefaultVoltageMapper returns the mapper for the default modulator.
func DefaultVoltageMapper() VoltageMapper {
	return VoltageMapper{VPi: DefaultVPi, VBias: DefaultVBias, VMax: DefaultVMax, DACBits: DefaultDACBits}
}

// Validate rejects non-physical mapper settings.
func (m VoltageMapper) Validate() error {
	if m.VPi <= 0 || m.VMax <= 0 {
		return fmt.Errorf("%w: VPi and VMax must be positive", domain.ErrInvalidProblemSpec)
	}
	if m.DACBits < 1 || m.DACBits > 31 {
		return fmt.Errorf("%w: DAC resolution %d bits", domain.ErrInvalidProblemSpec, m.DACBits)
	}
	return nil
}

// DACMax is the largest DAC code.
func (m VoltageMapper) DACMax() int {
	return 1<<m.DACBits - 1
}

// Voltage is the unclamped drive voltage of a phase.
func (m VoltageMapper) Voltage(phase float64) float64 {
	return phase/(2*math.Pi)*m.VPi + m.VBias
}

// DAC quantizes a voltage after clamping it to [0, VMax].
func (m VoltageMapper) DAC(voltage float64) int {
	v := math.Max(0, math.Min(voltage, m.VMax))
	return int(v / m.VMax * float64(m.DACMax()))
}

// Map converts a phase map indexed by channel into voltage rows. The stored
// voltage is the clamped one.
func (m VoltageMapper) Map(phases []float64) ([]Row, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	rows := make([]Row, len(phases))
	for i, p := range phases {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: channel %d phase is %v", domain.ErrInvalidProblemSpec, i, p)
		}
		v := math.Max(0, math.Min(m.Voltage(p), m.VMax))
		rows[i] = Row{Channel: i, Phase: p, Voltage: v, DAC: m.DAC(v)}
	}
	return rows, nil
}
