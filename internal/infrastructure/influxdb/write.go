package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Relaylight.
const (
	MeasurementActuation = "actuation"
	MeasurementDelivery  = "delivery"
)

// WriteActuation records one executed command on a device.
//
// Tags: device_id, action, ok. Fields: duration_ms (requested), elapsed_ms
// (actually spent driving the output).
//
// Example:
//
//	client.WriteActuation("relaylight-001", "BLINK", true, time.Second, 1002*time.Millisecond)
func (c *Client) WriteActuation(deviceID, action string, ok bool, duration, elapsed time.Duration) {
	c.WritePoint(MeasurementActuation,
		map[string]string{
			"device_id": deviceID,
			"action":    action,
			"ok":        strconv.FormatBool(ok),
		},
		map[string]any{
			"duration_ms": duration.Milliseconds(),
			"elapsed_ms":  elapsed.Milliseconds(),
		},
	)
}

// WriteDelivery records the outcome of one forwarder delivery.
//
// Tags: status (done or failed), action, region. Field: latency_ms.
func (c *Client) WriteDelivery(status, action, region string, latency time.Duration) {
	c.WritePoint(MeasurementDelivery,
		map[string]string{
			"status": status,
			"action": action,
			"region": region,
		},
		map[string]any{
			"latency_ms": latency.Milliseconds(),
		},
	)
}

// WritePoint queues a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp. Points
// written after Close are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
