package energy

import (
	"github.com/xtxerr/wattmon/internal/adc"
)

// ChannelState holds one signal's calibration and adaptive offset.
//
// Ratio and PhaseCal are fixed at construction per hardware channel.
// Offset is mutated by every estimation call: carrying the smoothed
// estimate forward avoids paying the filter's reconvergence cost on
// each cycle.
type ChannelState struct {
	Channel adc.Channel

	// Ratio scales zero-centred ADC counts to physical units together
	// with refVoltage/maxADC.
	Ratio float64

	// Offset is the running DC-offset estimate in raw counts.
	Offset float64

	// PhaseCal compensates the sequential-sampling delay between the
	// current and voltage reads. Voltage channel only; zero on current
	// channels.
	PhaseCal float64
}

// PhaseUnit owns one CT's calibration state pair and its latest merged
// reading. Units are identified by a small stable id and live in a
// fixed collection for the process lifetime.
type PhaseUnit struct {
	ID      uint16
	Current ChannelState
	Voltage ChannelState
	Reading Reading
}

// NewPhaseUnit builds a phase unit from its two channels and their
// calibration values. Initial offsets seed the adaptive filter near the
// expected mid-scale bias so the first few cycles are already usable.
func NewPhaseUnit(id uint16, current, voltage ChannelState) *PhaseUnit {
	return &PhaseUnit{
		ID:      id,
		Current: current,
		Voltage: voltage,
	}
}

// Reset zeroes the unit's merged reading. Called by the driver at every
// save-period boundary, after the reading has been handed to storage.
func (u *PhaseUnit) Reset() {
	u.Reading = Reading{}
}
