// Package logging provides structured logging for RoastSight Core.
//
// It is a thin layer over log/slog: every record carries the service
// name and build version, the handler format and level come from the
// logging section of config.yaml, and the Leveled interface documents
// the four-method surface that the driver, history and mqtt packages
// each declare locally.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components get a child logger via With:
//
//	rigLog := logger.With("component", "driver")
//	rigLog.Warn("connection attempt rejected", "failed_connections", 2)
//
// Never log secrets, tokens, passwords, or API keys.
package logging
