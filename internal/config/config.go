// Package config loads and validates the wattmond YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/wattmon/config"
)

// Config represents the complete daemon configuration.
type Config struct {
	// DataDir is the root directory for all data files.
	DataDir string `yaml:"data_dir"`

	// Sampling configures the estimation loop.
	Sampling SamplingConfig `yaml:"sampling"`

	// ADC configures the analog front end.
	ADC ADCConfig `yaml:"adc"`

	// Phases lists the monitored phases and their channel wiring.
	Phases []PhaseConfig `yaml:"phases"`

	// Storage configures the shard store.
	Storage StorageConfig `yaml:"storage"`

	// Archive configures shard compaction into Parquet.
	Archive ArchiveConfig `yaml:"archive"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// SamplingConfig configures the estimation loop.
type SamplingConfig struct {
	// Crossings is the zero-crossing count integrated per estimation.
	Crossings int `yaml:"crossings"`

	// Timeout bounds one estimation call.
	Timeout Duration `yaml:"timeout"`

	// SavePeriod is the interval between flushes to the shard store.
	SavePeriod Duration `yaml:"save_period"`
}

// ADCConfig configures the analog front end.
type ADCConfig struct {
	// MaxCount is the converter's full-scale raw value.
	MaxCount uint16 `yaml:"max_count"`

	// RefVoltage is the ADC reference in volts.
	RefVoltage float64 `yaml:"ref_voltage"`

	// NoiseThreshold gates min/max offset refinement.
	NoiseThreshold float64 `yaml:"noise_threshold"`
}

// PhaseConfig wires one phase to its channel pair and calibration.
type PhaseConfig struct {
	// ID is the stable phase identifier stored with every record.
	ID uint16 `yaml:"id"`

	// CurrentChannel and VoltageChannel name registered ADC channels.
	CurrentChannel string `yaml:"current_channel"`
	VoltageChannel string `yaml:"voltage_channel"`

	// CurrentCal and VoltageCal scale counts to amps and volts.
	CurrentCal float64 `yaml:"current_cal"`
	VoltageCal float64 `yaml:"voltage_cal"`

	// PhaseCal compensates the sequential-sampling skew.
	PhaseCal float64 `yaml:"phase_cal"`

	// CurrentOffset and VoltageOffset seed the adaptive DC filter.
	CurrentOffset float64 `yaml:"current_offset"`
	VoltageOffset float64 `yaml:"voltage_offset"`
}

// StorageConfig configures the shard store.
type StorageConfig struct {
	// Dir is the shard directory. Defaults to {DataDir}/shards.
	Dir string `yaml:"dir"`

	// MaxShardSize is the shard byte budget before rotation.
	MaxShardSize ByteSize `yaml:"max_shard_size"`
}

// ArchiveConfig configures shard compaction into Parquet.
type ArchiveConfig struct {
	// Enabled enables the archive engine.
	Enabled bool `yaml:"enabled"`

	// Schedule is the cron expression for compaction runs.
	Schedule string `yaml:"schedule"`

	// Bucket is the aggregation bucket width.
	Bucket Duration `yaml:"bucket"`

	// PercentileAccuracy is the DDSketch relative accuracy.
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`

	// Compression is the Parquet codec: snappy, zstd, none.
	Compression string `yaml:"compression"`

	// Dir is the Parquet directory. Defaults to {DataDir}/archive.
	Dir string `yaml:"dir"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout Duration `yaml:"timeout"`

	// MaxRows caps the number of rows returned.
	MaxRows int `yaml:"max_rows"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches from text to JSON output.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a single-phase configuration with package
// defaults and typical 9V-transformer/100A-CT calibration values.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/wattmon",
		Sampling: SamplingConfig{
			Crossings:  defaults.DefaultCrossingTarget,
			Timeout:    Duration(defaults.DefaultEstimateTimeout),
			SavePeriod: Duration(defaults.DefaultSavePeriod),
		},
		ADC: ADCConfig{
			MaxCount:       defaults.DefaultMaxADC,
			RefVoltage:     defaults.DefaultRefVoltage,
			NoiseThreshold: defaults.DefaultNoiseThreshold,
		},
		Phases: []PhaseConfig{
			{
				ID:             1,
				CurrentChannel: "ct1",
				VoltageChannel: "vt1",
				CurrentCal:     102.0,
				VoltageCal:     232.5,
				PhaseCal:       1.7,
				CurrentOffset:  1066,
				VoltageOffset:  1288,
			},
		},
		Storage: StorageConfig{
			MaxShardSize: defaults.DefaultMaxShardSize,
		},
		Archive: ArchiveConfig{
			Enabled:            true,
			Schedule:           defaults.DefaultArchiveSchedule,
			Bucket:             Duration(defaults.DefaultBucketInterval),
			PercentileAccuracy: defaults.DefaultPercentileAccuracy,
			Compression:        "zstd",
		},
		Query: QueryConfig{
			MemoryLimit: "512MB",
			Timeout:     Duration(30 * time.Second),
			MaxRows:     1000000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ShardDir returns the shard directory path.
func (c *Config) ShardDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(c.DataDir, "shards")
}

// ArchiveDir returns the Parquet archive directory path.
func (c *Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.DataDir, "archive")
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.ShardDir()}
	if c.Archive.Enabled {
		dirs = append(dirs, c.ArchiveDir())
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
