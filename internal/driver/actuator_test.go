package driver

import (
	"testing"
	"time"
)

func newActuatorState(t *testing.T, start, target float64) *State {
	t.Helper()
	s := NewState()
	if err := s.AddMeasure(Measure{ID: "out", Value: start}); err != nil {
		t.Fatalf("AddMeasure: %v", err)
	}
	if err := s.AddCommand(Command{ID: "out", LinkedMeasure: "out", Min: 0, Max: 100,
		SupportedVerbs: []Verb{VerbSetTo}}); err != nil {
		t.Fatalf("AddCommand: %v", err)
	}
	if err := s.BeginCommand("out", "i", VerbSetTo, target); err != nil {
		t.Fatalf("BeginCommand: %v", err)
	}
	return s
}

func TestActuatorDrivesValueToBand(t *testing.T) {
	s := newActuatorState(t, 0, 10)
	a := NewActuator(s, 1, time.Millisecond, 0.95, nil)

	a.Start("out")

	waitFor(t, time.Second, func() bool {
		return !a.Running("out")
	}, "actuation should finish")

	m, _ := s.Measure("out")
	if m.Value < 9.5 {
		t.Errorf("expected value at or beyond 9.5, got %v", m.Value)
	}
	if m.Value > 10 {
		t.Errorf("actuation must never overshoot the target, got %v", m.Value)
	}
}

func TestActuatorDrivesValueDownward(t *testing.T) {
	s := newActuatorState(t, 50, 20)
	a := NewActuator(s, 2, time.Millisecond, 0.95, nil)

	a.Start("out")
	waitFor(t, time.Second, func() bool {
		return !a.Running("out")
	}, "actuation should finish")

	m, _ := s.Measure("out")
	if m.Value > 21 || m.Value < 20 {
		t.Errorf("expected value just above or at 20, got %v", m.Value)
	}
}

func TestActuatorHaltsWhenPinnedAtBound(t *testing.T) {
	s := newActuatorState(t, 100, 100)
	// Force a target beyond the bound directly; the value cannot advance.
	s.BeginCommand("out", "i2", VerbSetTo, 200) //nolint:errcheck

	a := NewActuator(s, 1, time.Millisecond, 0.95, nil)
	a.Start("out")

	waitFor(t, time.Second, func() bool {
		return !a.Running("out")
	}, "pinned actuation should exit")

	m, _ := s.Measure("out")
	if m.Value != 100 {
		t.Errorf("expected value pinned at 100, got %v", m.Value)
	}
}

func TestActuatorCancelAndRestartSerializes(t *testing.T) {
	s := newActuatorState(t, 0, 100)
	a := NewActuator(s, 1, 2*time.Millisecond, 1.0, nil) // band 1.0: run until target

	a.Start("out")
	waitFor(t, time.Second, func() bool {
		m, _ := s.Measure("out")
		return m.Value > 0
	}, "first task should make progress")

	// Restarting for the same command replaces the task; only one remains.
	a.Start("out")
	if !a.Running("out") {
		t.Fatal("expected replacement task running")
	}

	if !a.Cancel("out") {
		t.Error("expected a task to cancel")
	}
	if a.Running("out") {
		t.Error("expected no task after cancel")
	}

	m, _ := s.Measure("out")
	frozen := m.Value
	time.Sleep(10 * time.Millisecond)
	m, _ = s.Measure("out")
	if m.Value != frozen {
		t.Errorf("value moved after cancel: %v -> %v", frozen, m.Value)
	}
}

func TestActuatorCancelAll(t *testing.T) {
	s := NewState()
	for _, id := range []string{"a", "b"} {
		if err := s.AddMeasure(Measure{ID: id}); err != nil {
			t.Fatalf("AddMeasure: %v", err)
		}
		if err := s.AddCommand(Command{ID: id, LinkedMeasure: id, Min: 0, Max: 100}); err != nil {
			t.Fatalf("AddCommand: %v", err)
		}
		if err := s.BeginCommand(id, "i", VerbSetTo, 100); err != nil {
			t.Fatalf("BeginCommand: %v", err)
		}
	}

	a := NewActuator(s, 1, 2*time.Millisecond, 1.0, nil)
	a.Start("a")
	a.Start("b")

	cancelled := a.CancelAll()
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 cancelled tasks, got %d", len(cancelled))
	}
	if a.Running("a") || a.Running("b") {
		t.Error("expected no tasks after CancelAll")
	}
}

func TestWithinBand(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		target float64
		band   float64
		want   bool
	}{
		{"at band boundary", 9.5, 10, 0.95, true},
		{"inside band", 9.8, 10, 0.95, true},
		{"outside band", 9.4, 10, 0.95, false},
		{"at target", 10, 10, 0.95, true},
		{"zero target requires exact", 0.1, 0, 0.95, false},
		{"zero target exact", 0, 0, 0.95, true},
		{"negative target", -9.6, -10, 0.95, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinBand(tt.value, tt.target, tt.band); got != tt.want {
				t.Errorf("withinBand(%v, %v, %v) = %v, want %v",
					tt.value, tt.target, tt.band, got, tt.want)
			}
		})
	}
}
