// Package logging provides structured logging for Relaylight.
//
// It wraps log/slog so the device agent and the forwarder emit the same
// machine-parsable records, each carrying service and version fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/relaylight/device.log"
//	    max_size: 10     # MB before rotation
//	    max_backups: 3
//	    max_age: 28      # days
//	    compress: false
//
// File output rotates through lumberjack; call Close on shutdown.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("intake listening", "address", addr)
//
// Never log the command key; it is an opaque shared secret.
package logging
