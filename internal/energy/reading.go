// Package energy implements the per-phase power estimation core: a
// zero-cross-gated sampling loop that derives RMS, real and apparent
// power, and incremental energy from paired current/voltage channels,
// while adaptively tracking each channel's DC offset.
package energy

// Reading is one phase's derived measurement at a point in time.
//
// ApparentPower, IRMS, VRMS and EnergyKWh are non-negative. EnergyKWh
// only grows across merges within a save period and is zeroed at the
// period boundary by Reset.
type Reading struct {
	RealPower     float64 // watts
	ApparentPower float64 // volt-amps
	IRMS          float64 // amps
	VRMS          float64 // volts
	EnergyKWh     float64 // accumulated within the current save period
	Timestamp     uint64  // unix milliseconds
}

// Merge combines an existing reading with a newer one.
//
// Instantaneous quantities (power, RMS) take the arithmetic mean of old
// and new, a cheap low-pass across successive estimates. Energy is
// summed so the period total equals the sum of per-call increments. The
// timestamp is taken from the new reading.
//
// The 50/50 weight is applied on every merge regardless of how many
// readings already contributed; downstream consumers depend on this
// exact behavior.
func Merge(old, next Reading) Reading {
	return Reading{
		RealPower:     (old.RealPower + next.RealPower) / 2,
		ApparentPower: (old.ApparentPower + next.ApparentPower) / 2,
		IRMS:          (old.IRMS + next.IRMS) / 2,
		VRMS:          (old.VRMS + next.VRMS) / 2,
		EnergyKWh:     old.EnergyKWh + next.EnergyKWh,
		Timestamp:     next.Timestamp,
	}
}

// IsZero reports whether all fields are exactly zero.
func (r Reading) IsZero() bool {
	return r == Reading{}
}
