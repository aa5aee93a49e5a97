// Package history persists sampling snapshots and command lifecycle events
// to SQLite.
//
// Recorder implements driver.Observer: each tick inserts one row per measure
// into the samples table, and every command event becomes a row in
// command_events. Repository serves the query side for the HTTP API and
// prunes rows past the retention window.
package history
