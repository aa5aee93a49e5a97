package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Eventect/roastsight-core/internal/driver"
	"github.com/Eventect/roastsight-core/internal/infrastructure/database"
	_ "github.com/Eventect/roastsight-core/migrations" // register embedded migrations
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	return NewRepository(db)
}

func testSnapshot(at time.Time) driver.Snapshot {
	return driver.Snapshot{
		Connected: true,
		Measures: []driver.MeasureSnapshot{
			{ID: "probe", Kind: "temperature", Value: 201.5},
			{ID: "out", Kind: "output", Value: 7, HasTarget: true, TargetValue: 40},
		},
		Commands: []driver.CommandSnapshot{
			{ID: "out", LinkedMeasure: "out", Phase: driver.PhaseIssuing},
		},
		TakenAt: at,
	}
}

func TestInsertAndQuerySamples(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.InsertSnapshot(ctx, testSnapshot(now)); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if err := repo.InsertSnapshot(ctx, testSnapshot(now.Add(time.Second))); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}

	samples, err := repo.Samples(ctx, "out", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}

	// Newest first.
	if !samples[0].RecordedAt.After(samples[1].RecordedAt) {
		t.Error("expected newest-first ordering")
	}

	s := samples[0]
	if s.MeasureID != "out" || s.Value != 7 {
		t.Errorf("unexpected sample: %+v", s)
	}
	if s.Target == nil || *s.Target != 40 {
		t.Errorf("expected target 40, got %v", s.Target)
	}
	if !s.Issuing {
		t.Error("expected issuing flag for controlled measure")
	}

	// Free measure rows carry no target.
	probes, err := repo.Samples(ctx, "probe", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(probes) != 2 {
		t.Fatalf("expected 2 probe samples, got %d", len(probes))
	}
	if probes[0].Target != nil {
		t.Errorf("expected nil target for free measure, got %v", *probes[0].Target)
	}
	if probes[0].Issuing {
		t.Error("free measure must not be marked issuing")
	}
}

func TestSamplesValidation(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.Samples(context.Background(), "", 10); !errors.Is(err, ErrEmptyMeasureID) {
		t.Errorf("expected ErrEmptyMeasureID, got %v", err)
	}

	// Unknown measure yields an empty result, not an error.
	samples, err := repo.Samples(context.Background(), "ghost", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

func TestSamplesLimitClamped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := repo.InsertSnapshot(ctx, testSnapshot(now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}

	samples, err := repo.Samples(ctx, "out", 3)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("expected limit of 3 respected, got %d", len(samples))
	}
}

func TestInsertAndQueryEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	events := []driver.CommandEvent{
		{IssueID: "i1", CommandID: "out", Event: driver.EventIssued, Verb: driver.VerbSetTo, Target: 40, Value: 0, At: time.Now().UTC()},
		{IssueID: "i1", CommandID: "out", Event: driver.EventRetried, Verb: driver.VerbSetTo, Target: 40, Value: 10, Retries: 1, At: time.Now().UTC().Add(time.Second)},
		{IssueID: "i1", CommandID: "out", Event: driver.EventConverged, Verb: driver.VerbSetTo, Target: 40, Value: 40, Retries: 1, At: time.Now().UTC().Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := repo.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	got, err := repo.Events(ctx, "out", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Event != driver.EventConverged {
		t.Errorf("expected newest-first, got %s first", got[0].Event)
	}
	if got[0].Retries != 1 || got[0].Value != 40 {
		t.Errorf("unexpected event payload: %+v", got[0])
	}
}

func TestPruneRemovesOldRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	if err := repo.InsertSnapshot(ctx, testSnapshot(old)); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if err := repo.InsertSnapshot(ctx, testSnapshot(recent)); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if err := repo.InsertEvent(ctx, driver.CommandEvent{
		IssueID: "i1", CommandID: "out", Event: driver.EventIssued,
		Verb: driver.VerbSetTo, At: old,
	}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	removed, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	// Two sample rows (probe, out) plus one event.
	if removed != 3 {
		t.Errorf("expected 3 rows pruned, got %d", removed)
	}

	samples, err := repo.Samples(ctx, "out", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("expected 1 remaining sample, got %d", len(samples))
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("expected error for non-positive retention")
	}
}

func TestRecorderPersistsAsynchronously(t *testing.T) {
	repo := newTestRepo(t)

	rec := NewRecorder(repo, 0, nil)

	rec.ObserveTick(testSnapshot(time.Now().UTC()))
	rec.ObserveCommand(driver.CommandEvent{
		IssueID: "i1", CommandID: "out", Event: driver.EventIssued,
		Verb: driver.VerbSetTo, Target: 40, At: time.Now().UTC(),
	})

	// Close drains the queues before returning.
	rec.Close()

	samples, err := repo.Samples(context.Background(), "out", 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("expected 1 sample after drain, got %d", len(samples))
	}

	events, err := repo.Events(context.Background(), "out", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event after drain, got %d", len(events))
	}
}
