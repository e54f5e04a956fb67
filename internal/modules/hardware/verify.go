package hardware

import (
	"fmt"
	"math"
	"slices"
)

// Severity grades a verification finding.
type Severity string

const (
	// SeverityCritical blocks the map from being loaded.
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// Limits are the device bounds a voltage map is checked against.
type Limits struct {
	VMax   float64
	DACMax int
	// Channels is the expected channel count; 0 skips the check.
	Channels int
}

// DefaultLimits returns the bounds of the default 16-bit driver.
func DefaultLimits(channels int) Limits {
	return Limits{VMax: DefaultVMax, DACMax: 1<<DefaultDACBits - 1, Channels: channels}
}

// Finding is one verification result. Channel is -1 when the finding is not
// tied to a parsed channel.
type Finding struct {
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
	Channel  int      `json:"channel"`
	Message  string   `json:"message"`
}

// Verification is the outcome of Verify.
type Verification struct {
	Channels    int       `json:"channels"`
	MinVoltage  float64   `json:"min_voltage"`
	MaxVoltage  float64   `json:"max_voltage"`
	MeanVoltage float64   `json:"mean_voltage"`
	Findings    []Finding `json:"findings"`
}

// Passed reports whether no critical finding was raised.
func (v *Verification) Passed() bool {
	for _, f := range v.Findings {
		if f.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// Count returns the number of findings with severity s.
func (v *Verification) Count(s Severity) int {
	n := 0
	for _, f := range v.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Verify checks every record of t against lim.
func Verify(t *Table, lim Limits) *Verification {
	v := &Verification{Channels: len(t.Records)}
	add := func(s Severity, line, ch int, format string, args ...any) {
		v.Findings = append(v.Findings, Finding{Severity: s, Line: line, Channel: ch, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Equal(t.Header, Header) {
		add(SeverityWarning, 1, -1, "header mismatch: expected %v, got %v", Header, t.Header)
	}

	sum, parsed := 0.0, 0
	v.MinVoltage, v.MaxVoltage = math.Inf(1), math.Inf(-1)
	for i, rec := range t.Records {
		row, err := parse(rec)
		if err != nil {
			add(SeverityCritical, rec.Line, -1, "parse error: %v", err)
			continue
		}

		if row.Voltage > lim.VMax {
			add(SeverityCritical, rec.Line, row.Channel, "voltage %.4fV exceeds V_max=%gV", row.Voltage, lim.VMax)
		}
		if row.DAC < 0 || row.DAC > lim.DACMax {
			add(SeverityCritical, rec.Line, row.Channel, "DAC value %d out of range [0, %d]", row.DAC, lim.DACMax)
		}
		if row.Voltage < 0 {
			add(SeverityWarning, rec.Line, row.Channel, "negative voltage %.4fV", row.Voltage)
		}
		if row.Phase < 0 || row.Phase > 2*math.Pi {
			add(SeverityWarning, rec.Line, row.Channel, "phase %.6f rad outside [0, 2π]", row.Phase)
		}
		if row.Channel != i {
			add(SeverityWarning, rec.Line, row.Channel, "channel id out of sequence: expected %d", i)
		}

		sum += row.Voltage
		parsed++
		v.MinVoltage = math.Min(v.MinVoltage, row.Voltage)
		v.MaxVoltage = math.Max(v.MaxVoltage, row.Voltage)
	}

	if lim.Channels > 0 && len(t.Records) != lim.Channels {
		add(SeverityWarning, 0, -1, "channel count mismatch: expected %d, found %d", lim.Channels, len(t.Records))
	}

	if parsed == 0 {
		v.MinVoltage, v.MaxVoltage = 0, 0
	} else {
		v.MeanVoltage = sum / float64(parsed)
	}
	return v
}
