// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Broker integration: WithScope returns a logger pre-tagged with
// user_id and app_id so every line emitted inside a capability bundle
// carries its (user, app) pair.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("server starting", zap.String("port", "8000"))
//	scoped := logger.WithScope("user-1", "habit-tracker")
//	scoped.Info("output requested", zap.String("output_id", "daily_streaks"))
package logging
