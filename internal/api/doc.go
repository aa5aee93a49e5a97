// Package api implements the HTTP REST API and WebSocket server for
// RoastSight.
//
// This package provides:
//   - REST endpoints for connection lifecycle, command issuance, live
//     state, driver parameters, and recorded history
//   - WebSocket hub broadcasting sampling ticks and command lifecycle
//     events in real time
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//
// # Architecture
//
// The API server sits between user interfaces (roast dashboards, profile
// tools) and the rig driver. Commands flow from the API into the driver's
// controller; state flows back on every sampling tick and is relayed to
// WebSocket clients subscribed to the rig.state and rig.command channels.
// The server registers itself as a driver observer, so the relay shares
// the same fan-out as the history recorder and telemetry publishers.
//
// # Graceful Degradation
//
// The server operates without a history repository: live state, commands,
// and WebSocket streams work, only the history endpoints report
// unavailable. This enables running with persistence disabled.
package api
