// Package executor runs one actuation sequence per command.
//
// An Action is a closed set: TURN_ON, TURN_OFF, BLINK, PULSE, and Unknown
// for anything else. Execute blocks for the whole sequence and cannot be
// cancelled once started; the caller serialises commands.
//
// Timed sequences are state machines that yield (level, hold) steps:
//
//	BLINK  count = max(1, duration/200ms) cycles of 100ms on + 100ms off
//	PULSE  0 -> 255 -> 0 ramps in fixed steps until the deadline passes
//
// PULSE checks the monotonic deadline before every step, so it overruns the
// requested duration by at most one step delay. BLINK and PULSE always
// finish with the output forced OFF. TURN_ON leaves the output on until the
// next command; an Unknown action never touches the output.
package executor
