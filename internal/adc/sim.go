package adc

import (
	"math"
)

// SimChannel is a deterministic sine-wave channel for tests and bench
// rigs without CT hardware attached.
//
// Each Read advances simulated time by Step, so sample cadence is
// decoupled from wall-clock speed and test runs are reproducible. The
// produced value is Offset + Amplitude*sin(2*pi*Freq*t + Shift),
// clamped to [0, max].
type SimChannel struct {
	Freq      float64 // waveform frequency in Hz
	Amplitude float64 // peak deviation from Offset, in ADC counts
	Offset    float64 // DC offset in ADC counts
	Shift     float64 // phase shift in radians
	Step      float64 // simulated seconds advanced per Read
	Max       uint16  // full-scale clamp

	// FailEvery injects a read failure on every Nth sample when > 0.
	FailEvery int

	t     float64
	reads int
}

// NewSimChannel returns a 50 Hz simulated channel centred at mid-scale
// with the given peak amplitude, stepping 100 us of signal per read.
func NewSimChannel(amplitude float64, shift float64, max uint16) *SimChannel {
	return &SimChannel{
		Freq:      50,
		Amplitude: amplitude,
		Offset:    float64(max) / 2,
		Shift:     shift,
		Step:      100e-6,
		Max:       max,
	}
}

// Read implements Channel.
func (s *SimChannel) Read() (uint16, error) {
	s.reads++
	if s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		s.t += s.Step
		return 0, errSimReadFailed
	}

	v := s.Offset + s.Amplitude*math.Sin(2*math.Pi*s.Freq*s.t+s.Shift)
	s.t += s.Step

	if v < 0 {
		v = 0
	}
	if v > float64(s.Max) {
		v = float64(s.Max)
	}
	return uint16(v), nil
}

// Reads returns the number of Read calls so far, including failed ones.
func (s *SimChannel) Reads() int {
	return s.reads
}

// FlatChannel always returns the same value. It models a disconnected
// or stuck sensor: the settle phase never finds the mid-scale band and
// the integration loop never observes a zero crossing.
type FlatChannel uint16

// Read implements Channel.
func (f FlatChannel) Read() (uint16, error) {
	return uint16(f), nil
}

type simError string

func (e simError) Error() string { return string(e) }

const errSimReadFailed = simError("simulated read failure")
