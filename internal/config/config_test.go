package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/wattmon/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DataDir == "" {
		t.Error("expected default data_dir")
	}

	if cfg.Sampling.Crossings <= 0 {
		t.Error("expected positive crossings")
	}

	if cfg.Sampling.SavePeriod <= 0 {
		t.Error("expected positive save_period")
	}

	if len(cfg.Phases) == 0 {
		t.Error("expected at least one default phase")
	}

	if !cfg.Archive.Enabled {
		t.Error("expected archive enabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	// Valid config
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	// Invalid: empty data_dir
	cfg = DefaultConfig()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty data_dir")
	}

	// Invalid: no phases
	cfg = DefaultConfig()
	cfg.Phases = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty phases")
	}

	// Invalid: duplicate phase id
	cfg = DefaultConfig()
	p := cfg.Phases[0]
	p.CurrentChannel = "ct2"
	p.VoltageChannel = "vt2"
	cfg.Phases = append(cfg.Phases, p)
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate phase id")
	}

	// Invalid: shared channel within a phase
	cfg = DefaultConfig()
	cfg.Phases[0].VoltageChannel = cfg.Phases[0].CurrentChannel
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for shared channel")
	}

	// Invalid: save period shorter than timeout
	cfg = DefaultConfig()
	cfg.Sampling.SavePeriod = cfg.Sampling.Timeout / 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for save_period < timeout")
	}

	// Invalid: bad compression codec
	cfg = DefaultConfig()
	cfg.Archive.Compression = "lzma"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid compression codec")
	}

	// Disabled archive skips archive validation
	cfg = DefaultConfig()
	cfg.Archive.Enabled = false
	cfg.Archive.Schedule = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled archive should not be validated: %v", err)
	}
}

func TestValidateErrorTaxonomy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.IsValidation(err) {
		t.Errorf("IsValidation(%v) = false, want true", err)
	}
	if !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("err = %v, want ErrMissingField in chain", err)
	}

	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) || !verrs.HasErrors() {
		t.Errorf("err = %v, want *ValidationErrors with errors", err)
	}

	cfg = DefaultConfig()
	cfg.Storage.MaxShardSize = 0
	if err := cfg.Validate(); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig in chain", err)
	}

	cfg = DefaultConfig()
	cfg.Archive.Bucket = 0
	if err := cfg.Validate(); !errors.Is(err, errors.ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval in chain", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
data_dir: ` + dir + `
sampling:
  crossings: 40
  save_period: 10s
phases:
  - id: 1
    current_channel: ct1
    voltage_channel: vt1
    current_cal: 30.0
    voltage_cal: 219.25
    phase_cal: 1.7
  - id: 2
    current_channel: ct2
    voltage_channel: vt1
    current_cal: 30.0
    voltage_cal: 219.25
    phase_cal: 1.7
storage:
  max_shard_size: 32768
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Overridden values
	if cfg.Sampling.Crossings != 40 {
		t.Errorf("crossings = %d, want 40", cfg.Sampling.Crossings)
	}
	if cfg.Sampling.SavePeriod.Duration() != 10*time.Second {
		t.Errorf("save_period = %v, want 10s", cfg.Sampling.SavePeriod)
	}
	if len(cfg.Phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(cfg.Phases))
	}
	if cfg.Storage.MaxShardSize != 32768 {
		t.Errorf("max_shard_size = %d, want 32768", cfg.Storage.MaxShardSize)
	}

	// Defaults fill unset fields
	if cfg.Sampling.Timeout <= 0 {
		t.Error("expected default timeout")
	}
	if cfg.ADC.MaxCount == 0 {
		t.Error("expected default adc max_count")
	}
	if cfg.ShardDir() != filepath.Join(dir, "shards") {
		t.Errorf("ShardDir = %q", cfg.ShardDir())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("data_dir: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestYAMLScalarTypes(t *testing.T) {
	var v struct {
		D Duration `yaml:"d"`
		B ByteSize `yaml:"b"`
	}

	if err := yaml.Unmarshal([]byte("d: 90s\nb: 64KB\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.D.Duration() != 90*time.Second {
		t.Errorf("duration = %v, want 90s", v.D.Duration())
	}
	if v.B.Bytes() != 64*1024 {
		t.Errorf("bytes = %d, want 65536", v.B.Bytes())
	}

	// Plain integers: seconds and bytes.
	if err := yaml.Unmarshal([]byte("d: 30\nb: 4096\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.D.Duration() != 30*time.Second {
		t.Errorf("duration = %v, want 30s", v.D.Duration())
	}
	if v.B.Bytes() != 4096 {
		t.Errorf("bytes = %d, want 4096", v.B.Bytes())
	}

	if err := yaml.Unmarshal([]byte("d: fast\n"), &v); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.ShardDir(), cfg.ArchiveDir()} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("missing directory %s: %v", dir, err)
		}
	}
}
