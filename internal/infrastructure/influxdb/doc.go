// Package influxdb provides InfluxDB connectivity for Relaylight metrics.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched metric writes, and health monitoring.
//
// # Purpose
//
// Metrics are optional. When enabled:
//   - the device agent writes an "actuation" point per executed command
//   - the forwarder writes a "delivery" point per completed record
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDelivery("done", "BLINK", "eu-west", 180*time.Millisecond)
//
// # Error Handling
//
// Writes are non-blocking; batch errors arrive through the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
