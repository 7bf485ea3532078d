package config

import (
	"fmt"

	"github.com/xtxerr/wattmon/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.DataDir == "" {
		v.AddMissing("data_dir")
	}

	v.Add(errors.Wrap(c.Sampling.Validate(), "sampling"))
	v.Add(errors.Wrap(c.ADC.Validate(), "adc"))

	if len(c.Phases) == 0 {
		v.AddMissing("phases")
	}
	seen := make(map[uint16]bool, len(c.Phases))
	for i := range c.Phases {
		p := &c.Phases[i]
		v.Add(errors.Wrapf(p.Validate(), "phases[%d]", i))
		if seen[p.ID] {
			v.AddField(fmt.Sprintf("phases[%d].id", i), fmt.Sprintf("duplicate id %d", p.ID))
		}
		seen[p.ID] = true
	}

	v.Add(errors.Wrap(c.Storage.Validate(), "storage"))
	v.Add(errors.Wrap(c.Archive.Validate(), "archive"))
	v.Add(errors.Wrap(c.Query.Validate(), "query"))
	v.Add(errors.Wrap(c.Logging.Validate(), "logging"))

	if v.HasErrors() {
		return v
	}
	return nil
}

// Validate checks the sampling configuration.
func (c *SamplingConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Crossings <= 0 {
		v.AddField("crossings", "must be positive")
	}
	if c.Timeout <= 0 {
		v.AddField("timeout", "must be positive")
	}
	if c.SavePeriod <= 0 {
		v.AddField("save_period", "must be positive")
	}

	// The save period must allow at least one estimation per phase.
	if c.SavePeriod > 0 && c.Timeout > 0 && c.SavePeriod < c.Timeout {
		v.AddField("save_period", "must be >= timeout")
	}

	return v.Err()
}

// Validate checks the ADC configuration.
func (c *ADCConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.MaxCount == 0 {
		v.AddField("max_count", "must be positive")
	}
	if c.RefVoltage <= 0 {
		v.AddField("ref_voltage", "must be positive")
	}
	if c.NoiseThreshold < 0 {
		v.AddField("noise_threshold", "must be non-negative")
	}

	return v.Err()
}

// Validate checks one phase's wiring and calibration.
func (c *PhaseConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.ID == 0 {
		v.AddField("id", "must be positive")
	}

	if c.CurrentChannel == "" {
		v.AddMissing("current_channel")
	}
	if c.VoltageChannel == "" {
		v.AddMissing("voltage_channel")
	}
	if c.CurrentChannel != "" && c.CurrentChannel == c.VoltageChannel {
		v.AddField("voltage_channel", "must differ from current_channel")
	}

	if c.CurrentCal <= 0 {
		v.AddField("current_cal", "must be positive")
	}
	if c.VoltageCal <= 0 {
		v.AddField("voltage_cal", "must be positive")
	}

	return v.Err()
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.MaxShardSize <= 0 {
		return errors.NewValidation("max_shard_size", "must be positive")
	}
	return nil
}

// Validate checks the archive configuration.
func (c *ArchiveConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := errors.NewValidationErrors()

	if c.Schedule == "" {
		v.AddMissing("schedule")
	}
	if c.Bucket <= 0 {
		v.Add(errors.Wrap(errors.ErrInvalidInterval, "bucket must be positive"))
	}
	if c.PercentileAccuracy <= 0 || c.PercentileAccuracy > 1 {
		v.AddField("percentile_accuracy", "must be between 0 and 1")
	}

	switch c.Compression {
	case "", "snappy", "zstd", "none":
	default:
		v.AddField("compression", "must be one of: snappy, zstd, none")
	}

	return v.Err()
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Timeout <= 0 {
		v.AddField("timeout", "must be positive")
	}
	if c.MaxRows <= 0 {
		v.AddField("max_rows", "must be positive")
	}

	return v.Err()
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	}
	return errors.NewValidation("level", "must be one of: debug, info, warn, error")
}
