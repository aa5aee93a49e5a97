package history

import (
	"context"
	"sync"
	"time"

	"github.com/Eventect/roastsight-core/internal/driver"
)

const (
	// recorderBuffer is the channel depth between the sampling tick and the
	// SQLite writer. Ticks never block on the database; overflow drops the
	// oldest pending work.
	recorderBuffer = 256

	// writeTimeout bounds each insert.
	writeTimeout = 5 * time.Second

	// pruneInterval is how often the retention window is enforced.
	pruneInterval = time.Hour
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder implements driver.Observer, persisting tick snapshots and command
// events asynchronously so the sampling loop never waits on SQLite.
type Recorder struct {
	repo      *Repository
	retention time.Duration
	logger    Logger

	snaps  chan driver.Snapshot
	events chan driver.CommandEvent

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRecorder creates and starts a Recorder. retention bounds how long rows
// are kept; zero disables pruning.
func NewRecorder(repo *Repository, retention time.Duration, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Recorder{
		repo:      repo,
		retention: retention,
		logger:    logger,
		snaps:     make(chan driver.Snapshot, recorderBuffer),
		events:    make(chan driver.CommandEvent, recorderBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// ObserveTick queues a snapshot for persistence. Never blocks; the snapshot
// is dropped when the writer is saturated.
func (r *Recorder) ObserveTick(snap driver.Snapshot) {
	select {
	case r.snaps <- snap:
	default:
		r.logger.Warn("history writer saturated, dropping snapshot")
	}
}

// ObserveCommand queues a command event for persistence.
func (r *Recorder) ObserveCommand(ev driver.CommandEvent) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("history writer saturated, dropping command event")
	}
}

// Close stops the writer after draining queued work.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)

	pruner := time.NewTicker(pruneInterval)
	defer pruner.Stop()

	for {
		select {
		case snap := <-r.snaps:
			r.writeSnapshot(snap)
		case ev := <-r.events:
			r.writeEvent(ev)
		case <-pruner.C:
			r.prune()
		case <-r.stop:
			r.drain()
			return
		}
	}
}

// drain flushes whatever is still queued at shutdown.
func (r *Recorder) drain() {
	for {
		select {
		case snap := <-r.snaps:
			r.writeSnapshot(snap)
		case ev := <-r.events:
			r.writeEvent(ev)
		default:
			return
		}
	}
}

func (r *Recorder) writeSnapshot(snap driver.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.InsertSnapshot(ctx, snap); err != nil {
		r.logger.Error("writing snapshot to history failed", "error", err)
	}
}

func (r *Recorder) writeEvent(ev driver.CommandEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.InsertEvent(ctx, ev); err != nil {
		r.logger.Error("writing command event to history failed", "error", err)
	}
}

func (r *Recorder) prune() {
	if r.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	removed, err := r.repo.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Error("pruning history failed", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Debug("pruned history rows", "removed", removed)
	}
}
