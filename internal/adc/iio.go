package adc

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/xtxerr/wattmon/internal/errors"
)

// IIOChannel reads raw samples from a Linux industrial-I/O ADC via
// sysfs, e.g. /sys/bus/iio/devices/iio:device0/in_voltage2_raw. Each
// Read opens and reads the attribute; the kernel performs the actual
// conversion per read, which is the sampling cadence the estimator's
// busy loop expects.
type IIOChannel struct {
	path string
	max  uint16
}

// NewIIOChannel returns a channel for the given IIO device and voltage
// channel index. Samples above max are rejected as acquisition errors.
func NewIIOChannel(device, channel int, max uint16) *IIOChannel {
	return &IIOChannel{
		path: fmt.Sprintf("/sys/bus/iio/devices/iio:device%d/in_voltage%d_raw", device, channel),
		max:  max,
	}
}

// Path returns the sysfs attribute path.
func (c *IIOChannel) Path() string { return c.path }

// Read implements Channel. Failures are acquisition errors; the
// estimator recovers by reusing the previous sample.
func (c *IIOChannel) Read() (uint16, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrChannelRead, "read %s: %v", c.path, err)
	}

	v, err := strconv.ParseUint(string(bytes.TrimSpace(data)), 10, 16)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrChannelRead, "parse %s: %v", c.path, err)
	}
	if uint16(v) > c.max {
		return 0, errors.Wrapf(errors.ErrSampleOutOfRange, "%s: %d > %d", c.path, v, c.max)
	}
	return uint16(v), nil
}
