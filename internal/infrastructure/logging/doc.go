// Package logging builds the zap loggers used across the tracing shim.
//
// Two modes are supported:
//   - Production: JSON output, stack traces off
//   - Development: colored console output at debug level
//
// Components accept a *zap.Logger and fall back to a no-op logger when
// given nil (see OrNop).
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("recording started", zap.String("path", "/"))
//	logger.Warn("failed to store record", zap.Error(err))
package logging
