// Package logging provides structured logging for the FSAPI bridge service.
//
// It wraps Go's standard log/slog package so every component logs with the
// same shape.
//
// # Features
//
//   - JSON output for production, text output for the interactive shell
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Per-component child loggers
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "fsapi-bridge", version)
//	logger.Component("mqtt").Info("connected", "broker", host)
//
// # Security
//
// Never log receiver PINs, MQTT passwords or InfluxDB tokens.
package logging
