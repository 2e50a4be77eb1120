package device

import (
	"time"

	"github.com/nerrad567/relaylight/internal/executor"
)

// Context is the mutable state of a running device.
// It is owned by the loop goroutine and never shared.
type Context struct {
	ID       string
	BootTime time.Time

	// LastHeartbeat is zero until the first heartbeat tick.
	LastHeartbeat time.Time

	// Current is the command being executed, nil when idle.
	Current *executor.Command

	Executed uint64
	Failed   uint64
}

// Health is a point-in-time copy of the device context.
type Health struct {
	DeviceID      string
	BootTime      time.Time
	Uptime        time.Duration
	LastHeartbeat time.Time
	Executed      uint64
	Failed        uint64
}

func (c *Context) snapshot(now time.Time) Health {
	return Health{
		DeviceID:      c.ID,
		BootTime:      c.BootTime,
		Uptime:        now.Sub(c.BootTime),
		LastHeartbeat: c.LastHeartbeat,
		Executed:      c.Executed,
		Failed:        c.Failed,
	}
}
