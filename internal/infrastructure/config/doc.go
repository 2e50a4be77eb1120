// Package config handles loading and validating Relaylight configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Preloading an optional .env file beside the config file
//   - Overriding with RELAYLIGHT_* environment variables
//   - Validation of required fields
//
// The device agent and the forwarder share one file layout; each binary
// reads only the sections it needs (device/actuator/intake or forwarder/database).
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Device.ID)
package config
