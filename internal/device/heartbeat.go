package device

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/relaylight/internal/infrastructure/mqtt"
)

type heartbeatEvent struct {
	DeviceID  string    `json:"device_id"`
	UptimeS   int64     `json:"uptime_s"`
	Executed  uint64    `json:"executed"`
	Failed    uint64    `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Tick posts a heartbeat to the loop without blocking. At most one tick
// is pending; ticks arriving while a command runs are coalesced.
func (l *Loop) Tick() {
	select {
	case l.ticks <- struct{}{}:
	default:
	}
}

// startHeartbeat schedules Tick every interval. The returned func stops
// the schedule and waits for a running job.
func (l *Loop) startHeartbeat() (func(), error) {
	if l.interval <= 0 {
		return func() {}, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", l.interval), l.Tick); err != nil {
		return nil, fmt.Errorf("scheduling heartbeat: %w", err)
	}
	c.Start()

	return func() { <-c.Stop().Done() }, nil
}

func (l *Loop) heartbeat() {
	now := l.now()
	l.state.LastHeartbeat = now
	uptime := now.Sub(l.state.BootTime)

	l.logger.Info("heartbeat",
		"device_id", l.state.ID,
		"uptime", uptime.Truncate(time.Second).String(),
		"executed", l.state.Executed,
		"failed", l.state.Failed,
	)

	// Retained so a late subscriber sees the last heartbeat at once.
	l.publish(mqtt.Topics{}.DeviceHeartbeat(l.state.ID), true, heartbeatEvent{
		DeviceID:  l.state.ID,
		UptimeS:   int64(uptime / time.Second),
		Executed:  l.state.Executed,
		Failed:    l.state.Failed,
		Timestamp: now.UTC(),
	})
}
