package driver

import "time"

// Command lifecycle event names.
const (
	// EventIssued is emitted when command() accepts a new verb/target.
	EventIssued = "issued"

	// EventRetried is emitted when the retry policy re-invokes actuation.
	EventRetried = "retried"

	// EventConverged is emitted when the convergence check clears issuing.
	EventConverged = "converged"

	// EventStalled is emitted once when an issuing command exhausts its
	// retry budget without converging.
	EventStalled = "stalled"

	// EventIgnored is emitted when a supported verb performs no actuation
	// (take_control). The no-op is reported, never silent.
	EventIgnored = "ignored"

	// EventCancelled is emitted when disconnect stops an in-flight
	// actuation task.
	EventCancelled = "cancelled"
)

// CommandEvent describes one transition in a command's lifecycle.
type CommandEvent struct {
	IssueID   string    `json:"issue_id"`
	CommandID string    `json:"command_id"`
	Event     string    `json:"event"`
	Verb      Verb      `json:"verb"`
	Target    float64   `json:"target"`
	Value     float64   `json:"value"`
	Retries   int       `json:"retries"`
	At        time.Time `json:"at"`
}

// Observer receives state snapshots after each sampling tick and command
// lifecycle events as they happen. Implementations must not block; slow
// consumers should buffer internally.
type Observer interface {
	ObserveTick(snap Snapshot)
	ObserveCommand(ev CommandEvent)
}
