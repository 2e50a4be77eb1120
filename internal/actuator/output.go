package actuator

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Memory is an Output that keeps every level written to it.
// The device uses it when no hardware is attached.
type Memory struct {
	mu      sync.Mutex
	level   uint8
	history []uint8
}

// NewMemory creates an empty in-memory output.
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements Output.
func (m *Memory) Write(level uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	m.history = append(m.history, level)
	return nil
}

// Level returns the last physical level written.
func (m *Memory) Level() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// History returns a copy of every physical level written, oldest first.
func (m *Memory) History() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint8, len(m.history))
	copy(out, m.history)
	return out
}

// Writes returns the number of writes so far.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Reset clears the recorded history and level.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
	m.history = nil
}

// Sysfs is an Output backed by a Linux LED class brightness file,
// e.g. /sys/class/leds/status/brightness.
type Sysfs struct {
	path string
}

// NewSysfs creates an output writing to path.
func NewSysfs(path string) *Sysfs {
	return &Sysfs{path: path}
}

// Write implements Output.
func (s *Sysfs) Write(level uint8) error {
	// sysfs attributes are written in place; the file must already exist.
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(int(level)) + "\n"); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return f.Close()
}

// Path returns the brightness file path.
func (s *Sysfs) Path() string {
	return s.path
}
