// Package logging provides structured logging for own-bridge.
//
// This package wraps Go's standard log/slog package so that the service,
// the gateway sessions and the bridge handlers all log through one
// configured handler.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Component child loggers (component=mqtt, component=openwebnet, ...)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("openwebnet").Info("gateway connected", "bridge", "gw1")
//
// # Security
//
// Never log gateway passwords or broker credentials. Configuration types
// that hold them implement String with redaction.
package logging
