// Package logging provides structured logging for the provisioner.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape: JSON in production, text in development, and the
// default fields service and version on every entry.
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
//	logger.Info("device provisioned", "device_id", id)
//	logger.Error("registry unreachable", "error", err)
//
// # Security
//
// Never log the IoT Agent API key, JWT secrets or broker credentials.
package logging
