package driver

import (
	"sync"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, source Source, dropPct float64, onTick func(Snapshot), onDrop func()) (*Scheduler, *State) {
	t.Helper()
	s := newTestState(t)
	a := NewActuator(s, 1, time.Hour, 0.95, nil)
	c := NewController(s, a, RetryParams{}, 1, 0.01, nil, nil)
	sched := NewScheduler(s, c, source, 2*time.Millisecond, dropPct, nil, onTick, onDrop)
	return sched, s
}

func TestSchedulerRefreshesFreeMeasuresOnly(t *testing.T) {
	var mu sync.Mutex
	var snaps []Snapshot
	onTick := func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, snap)
	}

	sched, s := newTestScheduler(t, newFakeSource(95), 0, onTick, nil)
	s.SetMeasureValue("out", 42)

	sched.Start()
	defer sched.Stop()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) >= 3
	}, "scheduler should tick")
	sched.Stop()

	probe, _ := s.Measure("probe")
	if probe.Value != 95 {
		t.Errorf("expected noise-refreshed probe 95, got %v", probe.Value)
	}

	// Controlled measures are never noise-refreshed.
	out, _ := s.Measure("out")
	if out.Value != 42 {
		t.Errorf("controlled measure mutated by noise refresh: %v", out.Value)
	}
}

func TestSchedulerCommitsPreviousValueAfterEvaluation(t *testing.T) {
	done := make(chan struct{})
	var once sync.Once
	onTick := func(Snapshot) { once.Do(func() { close(done) }) }

	sched, s := newTestScheduler(t, newFakeSource(95), 0, onTick, nil)
	if err := s.BeginCommand("out", "i", VerbSetTo, 40); err != nil {
		t.Fatalf("BeginCommand: %v", err)
	}
	s.SetMeasureValue("out", 7)

	sched.Start()
	defer sched.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no tick observed")
	}
	sched.Stop()

	_, m, _ := s.CommandView("out")
	if m.PreviousValue != m.Value {
		t.Errorf("expected previousValue committed to %v, got %v", m.Value, m.PreviousValue)
	}
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	sched, _ := newTestScheduler(t, newFakeSource(95), 0, nil, nil)

	sched.Start()
	sched.Start() // no-op
	if !sched.Running() {
		t.Fatal("expected running")
	}

	sched.Stop()
	sched.Stop() // no-op
	if sched.Running() {
		t.Fatal("expected stopped")
	}

	// Restartable after a stop.
	sched.Start()
	if !sched.Running() {
		t.Fatal("expected running after restart")
	}
	sched.Stop()
}

func TestSchedulerSpontaneousDrop(t *testing.T) {
	dropped := make(chan struct{})
	// Every draw returns the minimum of the range, so the drop fires on the
	// first tick at any nonzero percentage.
	sched, _ := newTestScheduler(t, newFakeSource(), 50, nil, func() { close(dropped) })

	sched.Start()

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("expected a simulated link drop")
	}

	waitFor(t, time.Second, func() bool {
		return !sched.Running()
	}, "scheduler should stop itself after a drop")
}
