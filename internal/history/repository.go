package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eventect/roastsight-core/internal/driver"
	"github.com/Eventect/roastsight-core/internal/infrastructure/database"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// ErrEmptyMeasureID is returned when a query omits the measure ID.
var ErrEmptyMeasureID = errors.New("history: measure id is required")

// Sample is one persisted measure reading.
type Sample struct {
	ID         int64     `json:"id"`
	MeasureID  string    `json:"measure_id"`
	Value      float64   `json:"value"`
	Target     *float64  `json:"target,omitempty"`
	Issuing    bool      `json:"issuing"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Event is one persisted command lifecycle event.
type Event struct {
	ID         int64     `json:"id"`
	IssueID    string    `json:"issue_id"`
	CommandID  string    `json:"command_id"`
	Event      string    `json:"event"`
	Verb       string    `json:"verb"`
	Target     float64   `json:"target"`
	Value      float64   `json:"value"`
	Retries    int       `json:"retries"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository reads and writes the sample-history tables.
type Repository struct {
	db *database.DB
}

// NewRepository creates a Repository over an open database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// InsertSnapshot persists one row per measure from a tick snapshot. Rows
// for controlled measures carry the target and issuing flag of the tick.
func (r *Repository) InsertSnapshot(ctx context.Context, snap driver.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	issuing := make(map[string]bool, len(snap.Commands))
	for _, c := range snap.Commands {
		issuing[c.LinkedMeasure] = c.Phase != driver.PhaseIdle
	}

	at := snap.TakenAt.UTC().Format(time.RFC3339)
	for _, m := range snap.Measures {
		var target any
		if m.HasTarget {
			target = m.TargetValue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO samples (measure_id, value, target, issuing, recorded_at)
			 VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Value, target, issuing[m.ID], at,
		); err != nil {
			return fmt.Errorf("inserting sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}
	return nil
}

// InsertEvent persists one command lifecycle event.
func (r *Repository) InsertEvent(ctx context.Context, ev driver.CommandEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_events (issue_id, command_id, event, verb, target, value, retries, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.IssueID, ev.CommandID, ev.Event, string(ev.Verb),
		ev.Target, ev.Value, ev.Retries, ev.At.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command event: %w", err)
	}
	return nil
}

// Samples returns recent samples for a measure, newest first.
// limit defaults to 100 and is capped at 1000.
func (r *Repository) Samples(ctx context.Context, measureID string, limit int) ([]Sample, error) {
	if measureID == "" {
		return nil, ErrEmptyMeasureID
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, measure_id, value, target, issuing, recorded_at
		 FROM samples
		 WHERE measure_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		measureID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0, limit)
	for rows.Next() {
		var s Sample
		var recordedAt string
		if err := rows.Scan(&s.ID, &s.MeasureID, &s.Value, &s.Target, &s.Issuing, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		s.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return samples, nil
}

// Events returns recent lifecycle events for a command, newest first.
func (r *Repository) Events(ctx context.Context, commandID string, limit int) ([]Event, error) {
	if commandID == "" {
		return nil, ErrEmptyMeasureID
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, issue_id, command_id, event, verb, target, value, retries, recorded_at
		 FROM command_events
		 WHERE command_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		commandID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.IssueID, &e.CommandID, &e.Event, &e.Verb,
			&e.Target, &e.Value, &e.Retries, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning command event: %w", err)
		}
		e.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command events: %w", err)
	}
	return events, nil
}

// Prune deletes samples and events older than the retention window.
// Returns the total number of rows removed.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	var total int64
	for _, table := range []string{"samples", "command_events"} {
		res, err := r.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE recorded_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
