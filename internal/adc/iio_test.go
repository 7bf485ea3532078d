package adc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/wattmon/internal/errors"
)

// attrChannel points an IIOChannel at an arbitrary file, standing in
// for the sysfs attribute.
func attrChannel(t *testing.T, content string) *IIOChannel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in_voltage0_raw")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &IIOChannel{path: path, max: 4095}
}

func TestIIOChannelRead(t *testing.T) {
	ch := attrChannel(t, "1234\n")
	v, err := ch.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 1234 {
		t.Errorf("Read = %d, want 1234", v)
	}
}

func TestIIOChannelRejectsOutOfRange(t *testing.T) {
	ch := attrChannel(t, "4500\n")
	if _, err := ch.Read(); !errors.Is(err, errors.ErrSampleOutOfRange) {
		t.Errorf("Read: err = %v, want ErrSampleOutOfRange", err)
	}
}

func TestIIOChannelReadFailures(t *testing.T) {
	ch := attrChannel(t, "not a number\n")
	if _, err := ch.Read(); !errors.Is(err, errors.ErrChannelRead) {
		t.Errorf("garbage attribute: err = %v, want ErrChannelRead", err)
	}

	gone := &IIOChannel{path: filepath.Join(t.TempDir(), "missing"), max: 4095}
	_, err := gone.Read()
	if !errors.Is(err, errors.ErrChannelRead) {
		t.Errorf("missing attribute: err = %v, want ErrChannelRead", err)
	}
	// Every IIO failure is an acquisition error the estimator tolerates.
	if !errors.IsAcquisition(err) {
		t.Errorf("IsAcquisition(%v) = false, want true", err)
	}
}
