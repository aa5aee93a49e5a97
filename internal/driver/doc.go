// Package driver simulates a roaster-style process-control device behind a
// driver interface.
//
// The simulated rig exposes measures (sensor-like quantities) and commands
// (controllable outputs linked to a measure). A connection lifecycle with
// probabilistic rejection gates a periodic sampling tick; each tick refreshes
// free-running measures with sensor noise and evaluates every command for
// convergence and retry. Issuing a command starts a slow actuation task that
// moves the linked measure toward its target in fixed steps at a fixed
// real-time interval, halting once the value crosses the convergence band.
//
// All mutable state lives in State and is mutated only through its named
// transition methods. Actuation tasks are serialized per command: starting a
// new task (initial issue or retry) cancels any task still running for the
// same command, and Disconnect cancels all of them.
//
// The package has no transport; a real driver replacing this simulation must
// honour the same surface: Connect, Disconnect, Command, Snapshot, Params,
// About.
package driver
