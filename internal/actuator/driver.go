package actuator

import (
	"sync"
)

// Logical levels.
const (
	LevelOff uint8 = 0
	LevelOn  uint8 = 255
)

// Output is a physical signal sink.
type Output interface {
	// Write drives the output to a physical level.
	Write(level uint8) error
}

// Logger is the logging interface used by the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Driver.
type Options struct {
	// Inverted drives the complement of the logical level (active-low wiring).
	Inverted bool

	// MaxLevel is the physical full-scale value. Zero means 255.
	MaxLevel uint8

	Logger Logger
}

// Driver is the Actuator Driver for one output.
//
// Thread Safety: All methods are safe for concurrent use.
type Driver struct {
	out      Output
	inverted bool
	max      uint8
	logger   Logger

	mu      sync.Mutex
	logical uint8
}

// NewDriver creates a driver for out. The output is not written until the
// first SetState or SetIntensity call.
func NewDriver(out Output, opts Options) *Driver {
	maxLevel := opts.MaxLevel
	if maxLevel == 0 {
		maxLevel = LevelOn
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Driver{
		out:      out,
		inverted: opts.Inverted,
		max:      maxLevel,
		logger:   logger,
	}
}

// SetState drives the output fully on or fully off.
func (d *Driver) SetState(on bool) {
	if on {
		d.SetIntensity(LevelOn)
		return
	}
	d.SetIntensity(LevelOff)
}

// SetIntensity drives the output to a proportional logical level (0-255).
func (d *Driver) SetIntensity(level uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()

	physical := d.physical(level)
	d.logical = level

	if err := d.out.Write(physical); err != nil {
		d.logger.Warn("actuator write failed", "logical", level, "physical", physical, "error", err)
		return
	}
	d.logger.Debug("actuator set", "logical", level, "physical", physical, "inverted", d.inverted)
}

// Level returns the last requested logical level.
func (d *Driver) Level() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logical
}

// IsOn reports whether the logical level is above zero.
func (d *Driver) IsOn() bool {
	return d.Level() > LevelOff
}

// physical scales a logical level to the output range and applies inversion.
func (d *Driver) physical(level uint8) uint8 {
	scaled := uint8(uint16(level) * uint16(d.max) / uint16(LevelOn))
	if d.inverted {
		return d.max - scaled
	}
	return scaled
}
