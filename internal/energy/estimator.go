package energy

import (
	"math"
	"time"

	"github.com/xtxerr/wattmon/config"
	"github.com/xtxerr/wattmon/internal/logging"
)

// Params bounds one estimation call.
type Params struct {
	// CrossingTarget is the number of zero crossings to integrate.
	// Every 2 crossings cover one full wavelength, so the loop always
	// integrates a whole number of half wavelengths.
	CrossingTarget int

	// Timeout bounds the worst-case loop duration. Both the settle and
	// integration phases poll elapsed time against it.
	Timeout time.Duration

	// SavePeriod scales the energy increment: a call that times out
	// early contributes proportionally less energy, never more.
	SavePeriod time.Duration

	// MaxADC is the converter's full-scale raw value.
	MaxADC uint16

	// RefVoltage is the ADC reference in volts.
	RefVoltage float64

	// NoiseThreshold gates min/max tracking for offset refinement.
	NoiseThreshold float64
}

// DefaultParams returns estimation parameters from the package defaults.
func DefaultParams() Params {
	return Params{
		CrossingTarget: config.DefaultCrossingTarget,
		Timeout:        config.DefaultEstimateTimeout,
		SavePeriod:     config.DefaultSavePeriod,
		MaxADC:         config.DefaultMaxADC,
		RefVoltage:     config.DefaultRefVoltage,
		NoiseThreshold: config.DefaultNoiseThreshold,
	}
}

// Estimate runs one bounded sampling pass over the unit's channel pair,
// merges the result into the unit's reading, and returns the merged
// value. The unit's channel offsets are updated in place.
//
// Estimate never fails: transient read errors reuse the previous sample
// and a timeout produces a degraded but valid reading. The caller must
// not invoke Estimate concurrently for the same unit.
func (u *PhaseUnit) Estimate(p Params) Reading {
	fullScale := float64(p.MaxADC)

	var (
		crossCount int
		nSamples   int

		sampleV, sampleI     uint16
		filteredV, filteredI float64
		lastV, lastI         float64

		offsetV = u.Voltage.Offset
		offsetI = u.Current.Offset

		minV, minI = p.MaxADC, p.MaxADC
		maxV, maxI uint16

		sumV, sumI, sumP float64
	)

	// Settle: wait for the voltage waveform to pass through the middle
	// 10% band of the ADC range, establishing the zero-reference sample.
	// A flat-line or disconnected sensor exits via the timeout and the
	// last sample read stands in as the reference.
	start := time.Now()
	var startV uint16
	for {
		if v, err := u.Voltage.Channel.Read(); err == nil {
			startV = v
		}
		f := float64(startV)
		if f > fullScale*config.SettleBandLow && f < fullScale*config.SettleBandHigh {
			break
		}
		if time.Since(start) > p.Timeout {
			logging.Phase(u.ID).Debug("settle timeout", "start_v", startV)
			break
		}
	}

	// Integration: accumulate sum-of-squares and instantaneous power
	// until enough crossings have been seen or the timeout expires.
	start = time.Now()
	var checkCross, lastCross bool
	for crossCount < p.CrossingTarget && time.Since(start) < p.Timeout {
		if v, err := u.Current.Channel.Read(); err == nil {
			sampleI = v
		}
		if v, err := u.Voltage.Channel.Read(); err == nil {
			sampleV = v
		}

		// Extract the DC offset with an exponential low-pass, then
		// subtract it so the signal is centred on zero counts.
		offsetI += (float64(sampleI) - offsetI) / config.OffsetSmoothing
		filteredI = float64(sampleI) - offsetI

		offsetV += (float64(sampleV) - offsetV) / config.OffsetSmoothing
		filteredV = float64(sampleV) - offsetV

		// Transient spikes are excluded from the min/max used for
		// offset refinement; a small bias is traded for stability.
		if math.Abs(lastV-filteredV) < p.NoiseThreshold {
			minV = min(minV, sampleV)
			maxV = max(maxV, sampleV)
		}
		if math.Abs(lastI-filteredI) < p.NoiseThreshold {
			minI = min(minI, sampleI)
			maxI = max(maxI, sampleI)
		}

		sumV += filteredV * filteredV
		sumI += filteredI * filteredI

		// Interpolate the voltage back toward the previous sample to
		// cancel the skew of the sequential current/voltage reads.
		shiftedV := lastV + u.Voltage.PhaseCal*(filteredV-lastV)
		sumP += shiftedV * filteredI

		// A crossing is a sign flip of (raw voltage - reference)
		// between consecutive samples. The first sample has no prior
		// state and never counts.
		lastCross = checkCross
		checkCross = sampleV > startV
		if nSamples == 0 {
			lastCross = checkCross
		}
		if lastCross != checkCross {
			crossCount++
		}

		nSamples++
		lastV = filteredV
		lastI = filteredI
	}
	elapsed := time.Since(start)

	// Refine the offsets toward the midpoint of the tracked extremes;
	// the averaged baseline is carried into the next invocation.
	offsetI = (offsetI + float64(uint32(maxI)+uint32(minI))/2) / 2
	offsetV = (offsetV + float64(uint32(maxV)+uint32(minV))/2) / 2
	u.Current.Offset = offsetI
	u.Voltage.Offset = offsetV

	r := Reading{Timestamp: uint64(time.Now().UnixMilli())}
	if nSamples > 0 {
		n := float64(nSamples)
		vRatio := u.Voltage.Ratio * (p.RefVoltage / fullScale)
		iRatio := u.Current.Ratio * (p.RefVoltage / fullScale)

		r.VRMS = vRatio * math.Sqrt(sumV/n)
		r.IRMS = iRatio * math.Sqrt(sumI/n)
		r.RealPower = math.Abs(vRatio * iRatio * (sumP / n))
		r.ApparentPower = r.VRMS * r.IRMS
		r.EnergyKWh = r.RealPower * elapsed.Seconds() / p.SavePeriod.Seconds()
	}

	logging.Phase(u.ID).Debug("estimate",
		"samples", nSamples,
		"crossings", crossCount,
		"elapsed_ms", elapsed.Milliseconds(),
		"offset_i", offsetI,
		"offset_v", offsetV)

	u.Reading = Merge(u.Reading, r)
	return u.Reading
}
