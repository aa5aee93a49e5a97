package driver

import (
	"sync"
	"time"
)

// Scheduler drives the periodic sampling tick while the rig is connected.
//
// Each tick, in order:
//  1. Every free-running measure is refreshed with uniform sensor noise
//     drawn from its configured range.
//  2. Every command is evaluated by the controller, then its linked
//     measure's previousValue is committed to the current value, so the
//     next tick compares progress against this one.
//  3. The resulting snapshot is delivered to onTick.
//  4. With probability dropPercentage the simulated link drops: the loop
//     exits and onDrop is invoked.
//
// A tick never blocks on actuation; actuation tasks run independently and
// span multiple ticks.
type Scheduler struct {
	state      *State
	controller *Controller
	source     Source
	interval   time.Duration

	// dropPercentage is the per-tick probability (0-100) of spontaneous
	// link loss. 0 disables the fault injection.
	dropPercentage float64

	logger Logger
	onTick func(Snapshot)
	onDrop func()

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler creates a Scheduler. onTick and onDrop may be nil.
func NewScheduler(state *State, controller *Controller, source Source, interval time.Duration, dropPercentage float64, logger Logger, onTick func(Snapshot), onDrop func()) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	if onTick == nil {
		onTick = func(Snapshot) {}
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Scheduler{
		state:          state,
		controller:     controller,
		source:         source,
		interval:       interval,
		dropPercentage: dropPercentage,
		logger:         logger,
		onTick:         onTick,
		onDrop:         onDrop,
	}
}

// Start launches the tick loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.logger.Debug("sampling started", "interval", s.interval)
}

// Stop halts the tick loop and waits for the in-flight tick, if any, to
// finish. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Debug("sampling stopped")
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tick++
			s.runTick(tick)

			if s.dropPercentage > 0 && s.source.Float64InRange(0, 100) < s.dropPercentage {
				s.logger.Warn("simulated link loss on sampling tick", "tick", tick)
				s.markStopped()
				s.onDrop()
				return
			}
		}
	}
}

// runTick executes one sampling cycle.
func (s *Scheduler) runTick(tick uint64) {
	// Sensor noise on free-running measures.
	for _, id := range s.state.MeasureIDs() {
		m, ok := s.state.Measure(id)
		if !ok || m.HasTarget {
			continue
		}
		s.state.SetMeasureValue(id, s.source.Float64InRange(m.NoiseMin, m.NoiseMax))
	}

	// Convergence and retry evaluation, then commit previousValue so the
	// comparison baseline is this tick's value, not any mid-tick retry
	// snapshot.
	for _, id := range s.state.CommandIDs() {
		s.controller.CheckCommand(id, tick)
		s.state.CommitTick(id)
	}

	s.onTick(s.state.Snapshot())
}

// markStopped flips running before a self-initiated exit so a later Start
// is not refused. The channels are left for Stop callers to observe.
func (s *Scheduler) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}
