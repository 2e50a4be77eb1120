package device

import "errors"

// Domain-specific errors for the device loop.
var (
	// ErrLoopStopped is returned when a request reaches a loop that is not running.
	ErrLoopStopped = errors.New("device: loop stopped")

	// ErrLoopRunning is returned when Run is called twice.
	ErrLoopRunning = errors.New("device: loop already running")

	// ErrNetworkJoin is returned when every network join attempt failed.
	ErrNetworkJoin = errors.New("device: network join failed")
)
