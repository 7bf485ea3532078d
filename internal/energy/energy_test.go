package energy

import (
	"math"
	"testing"
	"time"

	"github.com/xtxerr/wattmon/internal/adc"
)

func simUnit(id uint16) *PhaseUnit {
	return NewPhaseUnit(id,
		ChannelState{Channel: adc.NewSimChannel(800, 0, 4095), Ratio: 102.0, Offset: 2047},
		ChannelState{Channel: adc.NewSimChannel(1200, 0.2, 4095), Ratio: 232.5, PhaseCal: 1.7, Offset: 2047},
	)
}

func simParams() Params {
	p := DefaultParams()
	p.CrossingTarget = 10
	p.Timeout = 500 * time.Millisecond
	p.SavePeriod = 10 * time.Second
	return p
}

func TestMerge(t *testing.T) {
	old := Reading{RealPower: 100, ApparentPower: 110, IRMS: 1, VRMS: 230, EnergyKWh: 0.5, Timestamp: 1000}
	next := Reading{RealPower: 200, ApparentPower: 210, IRMS: 3, VRMS: 234, EnergyKWh: 0.25, Timestamp: 2000}

	got := Merge(old, next)

	if got.RealPower != 150 || got.ApparentPower != 160 || got.IRMS != 2 || got.VRMS != 232 {
		t.Errorf("instantaneous fields not averaged: %+v", got)
	}
	if got.EnergyKWh != 0.75 {
		t.Errorf("EnergyKWh = %v, want 0.75 (summed)", got.EnergyKWh)
	}
	if got.Timestamp != 2000 {
		t.Errorf("Timestamp = %d, want 2000 (from new)", got.Timestamp)
	}
}

func TestMergeIntoZero(t *testing.T) {
	r := Reading{RealPower: 100, EnergyKWh: 0.5, Timestamp: 1}
	got := Merge(Reading{}, r)

	// The first merge after a reset still halves the instantaneous
	// values; only energy passes through untouched.
	if got.RealPower != 50 {
		t.Errorf("RealPower = %v, want 50", got.RealPower)
	}
	if got.EnergyKWh != 0.5 {
		t.Errorf("EnergyKWh = %v, want 0.5", got.EnergyKWh)
	}
}

func TestReset(t *testing.T) {
	u := simUnit(1)
	u.Reading = Reading{RealPower: 100, EnergyKWh: 1, Timestamp: 5}
	u.Reset()
	if !u.Reading.IsZero() {
		t.Errorf("Reading = %+v after Reset, want zero", u.Reading)
	}
}

func TestEstimateProducesPlausibleReading(t *testing.T) {
	u := simUnit(1)
	r := u.Estimate(simParams())

	if r.VRMS <= 0 || math.IsNaN(r.VRMS) {
		t.Fatalf("VRMS = %v, want positive", r.VRMS)
	}
	if r.IRMS <= 0 {
		t.Fatalf("IRMS = %v, want positive", r.IRMS)
	}
	if r.RealPower < 0 {
		t.Errorf("RealPower = %v, want non-negative", r.RealPower)
	}
	if r.ApparentPower <= 0 {
		t.Errorf("ApparentPower = %v, want positive", r.ApparentPower)
	}
	// Real power never exceeds apparent power.
	if r.RealPower > r.ApparentPower*1.0001 {
		t.Errorf("RealPower %v > ApparentPower %v", r.RealPower, r.ApparentPower)
	}
	if r.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
}

func TestEstimateUpdatesOffsets(t *testing.T) {
	u := simUnit(1)

	// Seed the offsets away from mid-scale; the adaptive filter and the
	// min/max refinement should pull them toward the true center.
	u.Current.Offset = 1500
	u.Voltage.Offset = 1500

	u.Estimate(simParams())

	if u.Current.Offset == 1500 {
		t.Error("current offset not updated")
	}
	if u.Voltage.Offset == 1500 {
		t.Error("voltage offset not updated")
	}
	if math.Abs(u.Current.Offset-2047) > 600 {
		t.Errorf("current offset = %v, want near mid-scale", u.Current.Offset)
	}
}

func TestEstimateFlatLineTimesOut(t *testing.T) {
	u := NewPhaseUnit(1,
		ChannelState{Channel: adc.FlatChannel(2000), Ratio: 102.0},
		ChannelState{Channel: adc.FlatChannel(100), Ratio: 232.5, PhaseCal: 1.7},
	)

	p := simParams()
	p.Timeout = 30 * time.Millisecond

	start := time.Now()
	r := u.Estimate(p)
	elapsed := time.Since(start)

	// Settle and integration each burn one timeout at most.
	if elapsed > 10*p.Timeout {
		t.Fatalf("Estimate took %v with flat input, timeout %v", elapsed, p.Timeout)
	}
	// A flat line has no AC component; after offset convergence the
	// figures stay near zero and must be finite.
	if math.IsNaN(r.VRMS) || math.IsInf(r.VRMS, 0) {
		t.Errorf("VRMS = %v, want finite", r.VRMS)
	}
	if r.Timestamp == 0 {
		t.Error("Timestamp not set on timeout path")
	}
}

func TestEstimateSurvivesReadFailures(t *testing.T) {
	current := adc.NewSimChannel(800, 0, 4095)
	current.FailEvery = 7
	voltage := adc.NewSimChannel(1200, 0.2, 4095)
	voltage.FailEvery = 5

	u := NewPhaseUnit(1,
		ChannelState{Channel: current, Ratio: 102.0, Offset: 2047},
		ChannelState{Channel: voltage, Ratio: 232.5, PhaseCal: 1.7, Offset: 2047},
	)

	r := u.Estimate(simParams())
	if r.VRMS <= 0 || math.IsNaN(r.VRMS) {
		t.Errorf("VRMS = %v with intermittent read failures, want positive", r.VRMS)
	}
}

func TestEstimateMergesAcrossCalls(t *testing.T) {
	u := simUnit(1)
	p := simParams()

	first := u.Estimate(p)
	second := u.Estimate(p)

	if second.EnergyKWh <= first.EnergyKWh {
		t.Errorf("energy not accumulating: %v then %v", first.EnergyKWh, second.EnergyKWh)
	}
	if second.Timestamp < first.Timestamp {
		t.Errorf("timestamp went backwards: %d then %d", first.Timestamp, second.Timestamp)
	}
}
