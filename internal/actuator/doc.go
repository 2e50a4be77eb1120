// Package actuator drives the device's single indicator output.
//
// A Driver maps logical requests (on, off, 0-255 intensity) to the physical
// level written to an Output, applying the polarity-inversion flag and the
// output's full-scale value. The logical level is what callers observe;
// with inversion active, "off" is the output's maximum physical level.
//
// Outputs:
//   - Memory: keeps every written level in memory (simulation and tests)
//   - Sysfs: writes to a Linux LED class brightness file
//
// Driver calls never fail. Output write errors are logged and dropped.
package actuator
