// Package device runs the single-owner event loop of a Relaylight device.
//
// One goroutine (Loop.Run) owns the device Context and the executor. Every
// input reaches it as a message:
//
//   - Execute hands over a parsed command and waits for its result
//   - Health asks for a snapshot of the context
//   - the heartbeat schedule posts ticks
//
// The loop serves one message at a time. A BLINK of five seconds therefore
// delays a concurrent health check by up to five seconds; commands are
// never preempted and are not cancelled once started.
//
// JoinNetwork is the boot-time connectivity check. When it gives up the
// agent exits so its supervisor restarts it.
package device
