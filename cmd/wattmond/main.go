// wattmond is the CT energy monitoring daemon.
//
// It samples the configured phase channel pairs continuously, persists
// one reading per phase every save period into the shard store, and
// optionally compacts rotated shards into Parquet aggregates on a cron
// schedule.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"

	"github.com/xtxerr/wattmon/internal/adc"
	"github.com/xtxerr/wattmon/internal/archive"
	"github.com/xtxerr/wattmon/internal/config"
	"github.com/xtxerr/wattmon/internal/energy"
	"github.com/xtxerr/wattmon/internal/logging"
	"github.com/xtxerr/wattmon/internal/sampler"
	"github.com/xtxerr/wattmon/internal/shard"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	sim := flag.Bool("sim", false, "bind all channels to the waveform simulator")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logging.Init(parseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("wattmond starting", "version", Version, "data_dir", cfg.DataDir)

	if err := cfg.EnsureDirectories(); err != nil {
		fatal(log, "create directories", err)
	}

	// =========================================================================
	// Shard store
	// =========================================================================

	store := shard.New(cfg.ShardDir(), cfg.Storage.MaxShardSize.Bytes())
	if err := store.Discover(); err != nil {
		fatal(log, "discover shards", err)
	}
	log.Info("shard store ready", "dir", store.Dir(), "active", store.Active())

	// =========================================================================
	// Channels and phase units
	// =========================================================================

	registry := adc.NewRegistry()
	if err := bindChannels(registry, cfg, *sim); err != nil {
		fatal(log, "bind channels", err)
	}

	units, err := buildUnits(registry, cfg)
	if err != nil {
		fatal(log, "build phase units", err)
	}
	log.Info("phases configured", "count", len(units), "simulated", *sim)

	// =========================================================================
	// Sampler
	// =========================================================================

	params := energy.Params{
		CrossingTarget: cfg.Sampling.Crossings,
		Timeout:        cfg.Sampling.Timeout.Duration(),
		SavePeriod:     cfg.Sampling.SavePeriod.Duration(),
		MaxADC:         cfg.ADC.MaxCount,
		RefVoltage:     cfg.ADC.RefVoltage,
		NoiseThreshold: cfg.ADC.NoiseThreshold,
	}

	smp := sampler.New(units, params, cfg.Sampling.SavePeriod.Duration(), store)
	smp.Start()

	// =========================================================================
	// Archive engine
	// =========================================================================

	var eng *archive.Engine
	if cfg.Archive.Enabled {
		eng = archive.New(store, archive.Options{
			Dir:                cfg.ArchiveDir(),
			Schedule:           cfg.Archive.Schedule,
			Bucket:             cfg.Archive.Bucket.Duration(),
			PercentileAccuracy: cfg.Archive.PercentileAccuracy,
			Compression:        cfg.Archive.Compression,
		})
		if err := eng.Start(); err != nil {
			fatal(log, "start archive engine", err)
		}
	} else {
		log.Info("archive disabled")
	}

	// =========================================================================
	// Signal handling and graceful shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")

	// Stop the sampler first so the final partial period is flushed,
	// then the archiver, then seal the store.
	smp.Stop()
	if eng != nil {
		eng.Stop()
	}
	if err := store.Close(); err != nil {
		log.Warn("close store", "error", err)
	}

	estimates, flushes, saveErrors := smp.Stats()
	log.Info("wattmond stopped",
		"estimates", estimates,
		"flushes", flushes,
		"save_errors", saveErrors,
		"storage_faults", smp.StorageFaults())
}

// iioName matches channel names of the form "iio:<device>:<channel>".
var iioName = regexp.MustCompile(`^iio:(\d+):(\d+)$`)

// bindChannels populates the registry from the phase table. Names of
// the form iio:<dev>:<ch> bind to the kernel IIO ADC; anything else,
// or everything under -sim, binds to the waveform simulator.
func bindChannels(registry *adc.Registry, cfg *config.Config, sim bool) error {
	simFor := func(name string, voltage bool) adc.Channel {
		// Distinct amplitudes so current and voltage do not produce
		// degenerate identical waveforms.
		if voltage {
			return adc.NewSimChannel(1200, 0.2, cfg.ADC.MaxCount)
		}
		return adc.NewSimChannel(800, 0, cfg.ADC.MaxCount)
	}

	bind := func(name string, voltage bool) error {
		if _, err := registry.Lookup(name); err == nil {
			return nil // shared channel, already bound
		}
		if !sim {
			if m := iioName.FindStringSubmatch(name); m != nil {
				dev, _ := strconv.Atoi(m[1])
				ch, _ := strconv.Atoi(m[2])
				iio := adc.NewIIOChannel(dev, ch, cfg.ADC.MaxCount)
				if _, err := os.Stat(iio.Path()); err != nil {
					return fmt.Errorf("channel %s: %w", name, err)
				}
				registry.Register(name, iio)
				return nil
			}
		}
		registry.Register(name, simFor(name, voltage))
		return nil
	}

	for _, p := range cfg.Phases {
		if err := bind(p.CurrentChannel, false); err != nil {
			return err
		}
		if err := bind(p.VoltageChannel, true); err != nil {
			return err
		}
	}
	return nil
}

// buildUnits resolves each phase's channels and calibration into a
// phase unit.
func buildUnits(registry *adc.Registry, cfg *config.Config) ([]*energy.PhaseUnit, error) {
	units := make([]*energy.PhaseUnit, 0, len(cfg.Phases))
	for _, p := range cfg.Phases {
		current, err := registry.Lookup(p.CurrentChannel)
		if err != nil {
			return nil, err
		}
		voltage, err := registry.Lookup(p.VoltageChannel)
		if err != nil {
			return nil, err
		}

		units = append(units, energy.NewPhaseUnit(p.ID,
			energy.ChannelState{Channel: current, Ratio: p.CurrentCal, Offset: p.CurrentOffset},
			energy.ChannelState{Channel: voltage, Ratio: p.VoltageCal, Offset: p.VoltageOffset, PhaseCal: p.PhaseCal},
		))
	}
	return units, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
