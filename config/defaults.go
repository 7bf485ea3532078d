// Package config provides configuration defaults and utilities
// for the wattmon daemon.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// ADC Defaults
// =============================================================================

const (
	// DefaultMaxADC is the full-scale raw sample value of the converter.
	// 4095 corresponds to a 12-bit ADC.
	// Override via config: adc.max_count
	DefaultMaxADC = 4095

	// DefaultRefVoltage is the ADC reference voltage in volts, used to
	// scale raw counts to physical units together with the per-channel
	// calibration ratio.
	// Override via config: adc.ref_voltage
	DefaultRefVoltage = 3.3

	// DefaultNoiseThreshold is the maximum sample-to-sample change of the
	// filtered signal for a sample to participate in min/max offset
	// refinement. Larger swings are treated as transient spikes.
	// Override via config: adc.noise_threshold
	DefaultNoiseThreshold = 25.0

	// OffsetSmoothing is the exponential smoothing divisor for the
	// running DC-offset estimate: offset += (sample - offset) / 512.
	// Fixed; matches the CT front-end time constant.
	OffsetSmoothing = 512.0

	// SettleBandLow and SettleBandHigh bound the mid-scale band, as a
	// fraction of full scale, that the voltage waveform must enter
	// before the integration loop starts.
	SettleBandLow  = 0.45
	SettleBandHigh = 0.55
)

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultCrossingTarget is the number of zero crossings integrated
	// per estimation call. Every 2 crossings cover one full wavelength;
	// 20 crossings at 50 Hz is 200 ms of signal.
	// Override via config: sampling.crossings
	DefaultCrossingTarget = 20

	// DefaultEstimateTimeout bounds one estimation call. A disconnected
	// or flat-line sensor must not hang the sampling loop.
	// Override via config: sampling.timeout
	DefaultEstimateTimeout = 2 * time.Second

	// DefaultSavePeriod is the interval between flushes of the merged
	// phase readings to the shard store. Energy increments are scaled
	// against this period.
	// Override via config: sampling.save_period
	DefaultSavePeriod = 30 * time.Second
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// RecordSize is the fixed encoded size of one reading record:
	// u16 phase id + five f32 metrics + u64 timestamp = 30 bytes.
	// This layout is consumed by external readers and must not change.
	RecordSize = 30

	// DefaultMaxShardSize is the byte budget of one shard file before
	// rotation. Sized for flash filesystems with small erase blocks.
	// Override via config: storage.max_shard_size
	DefaultMaxShardSize = 64 * 1024
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveSchedule runs shard compaction hourly.
	// Override via config: archive.schedule
	DefaultArchiveSchedule = "0 * * * *"

	// DefaultBucketInterval is the aggregation bucket width.
	// Override via config: archive.bucket
	DefaultBucketInterval = time.Hour

	// DefaultPercentileAccuracy is the DDSketch relative accuracy
	// (0.01 = 1% error), matching the utility-grade accuracy target.
	// Override via config: archive.percentile_accuracy
	DefaultPercentileAccuracy = 0.01
)
