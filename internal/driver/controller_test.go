package driver

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// eventSink collects controller events without a full driver.
type eventSink struct {
	mu     sync.Mutex
	events []CommandEvent
}

func (e *eventSink) record(ev CommandEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventSink) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Event == name {
			n++
		}
	}
	return n
}

// newTestController wires a controller around a fresh state. The actuator
// interval is long enough that no step fires unless a test waits for it.
func newTestController(t *testing.T, retry RetryParams, retryEvery int, actInterval time.Duration) (*Controller, *State, *Actuator, *eventSink) {
	t.Helper()
	s := newTestState(t)
	a := NewActuator(s, 1, actInterval, 0.95, nil)
	sink := &eventSink{}
	c := NewController(s, a, retry, retryEvery, 0.01, nil, sink.record)
	return c, s, a, sink
}

func TestControllerCommandVerbDispatch(t *testing.T) {
	tests := []struct {
		name       string
		verb       Verb
		start      float64
		target     float64
		wantTarget float64
	}{
		{"set_to is absolute", VerbSetTo, 0, 40, 40},
		{"increase adds to current", VerbIncrease, 20, 10, 30},
		{"decrease subtracts from current", VerbDecrease, 20, 5, 15},
		{"set_to clamps above max", VerbSetTo, 0, 250, 100},
		{"decrease clamps below min", VerbDecrease, 10, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Unlike newTestState, this fixture declares all three verbs so
			// each dispatch path can be exercised.
			s := NewState()
			if err := s.AddMeasure(Measure{ID: "out", Kind: "output", Value: 0}); err != nil {
				t.Fatalf("AddMeasure: %v", err)
			}
			if err := s.AddCommand(Command{ID: "out", LinkedMeasure: "out", Min: 0, Max: 100,
				SupportedVerbs: []Verb{VerbSetTo, VerbIncrease, VerbDecrease}}); err != nil {
				t.Fatalf("AddCommand: %v", err)
			}
			a := NewActuator(s, 1, time.Hour, 0.95, nil)
			sink := &eventSink{}
			c := NewController(s, a, RetryParams{}, 1, 0.01, nil, sink.record)
			defer a.CancelAll()
			s.SetMeasureValue("out", tt.start)

			issueID, err := c.Command("out", tt.verb, tt.target)
			if err != nil {
				t.Fatalf("Command: %v", err)
			}
			if issueID == "" {
				t.Error("expected a non-empty issue ID")
			}

			cmd, m, _ := s.CommandView("out")
			if m.TargetValue != tt.wantTarget {
				t.Errorf("target = %v, want %v", m.TargetValue, tt.wantTarget)
			}
			if !cmd.Issuing {
				t.Error("expected issuing after command")
			}
			if m.PreviousValue != tt.start {
				t.Errorf("previousValue = %v, want snapshot of %v", m.PreviousValue, tt.start)
			}
		})
	}
}

func TestControllerRejectsUndeclaredVerb(t *testing.T) {
	c, s, a, _ := newTestController(t, RetryParams{}, 1, time.Hour)
	defer a.CancelAll()

	// The command in newTestState declares set_to only.
	if _, err := c.Command("out", VerbIncrease, 5); !errors.Is(err, ErrUnsupportedVerb) {
		t.Errorf("expected ErrUnsupportedVerb, got %v", err)
	}
	if _, err := c.Command("out", Verb("bogus"), 5); !errors.Is(err, ErrUnsupportedVerb) {
		t.Errorf("expected ErrUnsupportedVerb, got %v", err)
	}
	if _, err := c.Command("nope", VerbSetTo, 5); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}

	cmd, _ := s.Command("out")
	if cmd.Issuing {
		t.Error("rejected verbs must not mutate state")
	}
}

func TestCheckCommandConvergenceClearsIssuing(t *testing.T) {
	c, s, a, sink := newTestController(t, RetryParams{}, 1, time.Hour)
	defer a.CancelAll()

	if _, err := c.Command("out", VerbSetTo, 40); err != nil {
		t.Fatalf("Command: %v", err)
	}
	s.SetMeasureValue("out", 40) // already at target

	c.CheckCommand("out", 1)

	cmd, _ := s.Command("out")
	if cmd.Issuing {
		t.Error("expected issuing cleared on convergence")
	}
	if sink.count(EventConverged) != 1 {
		t.Errorf("expected one converged event, got %d", sink.count(EventConverged))
	}
}

func TestCheckCommandToleranceRelativeToValue(t *testing.T) {
	// Tolerance is 1% of the current value: at value 39.7 and target 40 the
	// distance 0.3 is within 0.397, so the command converges.
	c, s, a, _ := newTestController(t, RetryParams{}, 1, time.Hour)
	defer a.CancelAll()

	if _, err := c.Command("out", VerbSetTo, 40); err != nil {
		t.Fatalf("Command: %v", err)
	}
	s.SetMeasureValue("out", 39.7)
	c.CheckCommand("out", 1)

	cmd, _ := s.Command("out")
	if cmd.Issuing {
		t.Error("expected convergence within relative tolerance")
	}
}

func TestCheckCommandZeroValueDegeneratesToExact(t *testing.T) {
	c, s, a, _ := newTestController(t, RetryParams{Limited: true, MaxRetries: 0}, 1, time.Hour)
	defer a.CancelAll()

	if _, err := c.Command("out", VerbSetTo, 0.5); err != nil {
		t.Fatalf("Command: %v", err)
	}
	// Value 0: tolerance degenerates to zero, no convergence despite the
	// small distance.
	c.CheckCommand("out", 1)

	cmd, _ := s.Command("out")
	if !cmd.Issuing {
		t.Error("expected no convergence at value 0 with nonzero target")
	}
}

func TestCheckCommandIdleIsIdempotent(t *testing.T) {
	c, s, a, sink := newTestController(t, RetryParams{}, 1, time.Hour)
	defer a.CancelAll()

	for tick := uint64(1); tick <= 5; tick++ {
		c.CheckCommand("out", tick)
	}

	cmd, _ := s.Command("out")
	if cmd.Retries != 0 {
		t.Errorf("idle checks must not retry, got %d retries", cmd.Retries)
	}
	if len(sink.events) != 0 {
		t.Errorf("idle checks must not emit events, got %d", len(sink.events))
	}
	if a.Running("out") {
		t.Error("idle checks must not start actuation")
	}
}

func TestCheckCommandRetriesOnNoProgress(t *testing.T) {
	c, s, a, sink := newTestController(t, RetryParams{Limited: true, MaxRetries: 1}, 1, time.Hour)
	defer a.CancelAll()

	if _, err := c.Command("out", VerbSetTo, 40); err != nil {
		t.Fatalf("Command: %v", err)
	}

	// No movement between ticks: retry fires while the budget lasts.
	c.CheckCommand("out", 1)
	s.CommitTick("out")
	c.CheckCommand("out", 2)
	s.CommitTick("out")

	cmd, _ := s.Command("out")
	if cmd.Retries != 2 {
		t.Errorf("expected 2 retries (inclusive bound), got %d", cmd.Retries)
	}
	if sink.count(EventRetried) != 2 {
		t.Errorf("expected 2 retried events, got %d", sink.count(EventRetried))
	}

	// Budget now exhausted: the next stall marks the command stalled, once.
	c.CheckCommand("out", 3)
	s.CommitTick("out")
	c.CheckCommand("out", 4)
	s.CommitTick("out")

	cmd, _ = s.Command("out")
	if cmd.Retries != 2 {
		t.Errorf("expected retries frozen at 2, got %d", cmd.Retries)
	}
	if !cmd.Stalled {
		t.Error("expected stalled flag after budget exhaustion")
	}
	if sink.count(EventStalled) != 1 {
		t.Errorf("expected exactly one stalled event, got %d", sink.count(EventStalled))
	}
	if !cmd.Issuing {
		t.Error("stalled command remains issuing")
	}
}

func TestCheckCommandRetryFrequencyThrottles(t *testing.T) {
	c, s, a, sink := newTestController(t, RetryParams{}, 3, time.Hour)
	defer a.CancelAll()

	if _, err := c.Command("out", VerbSetTo, 40); err != nil {
		t.Fatalf("Command: %v", err)
	}

	// Only every third tick evaluates retry.
	for tick := uint64(1); tick <= 6; tick++ {
		c.CheckCommand("out", tick)
		s.CommitTick("out")
	}

	cmd, _ := s.Command("out")
	if cmd.Retries != 2 {
		t.Errorf("expected 2 retries over 6 ticks at frequency 3, got %d", cmd.Retries)
	}
	if sink.count(EventRetried) != 2 {
		t.Errorf("expected 2 retried events, got %d", sink.count(EventRetried))
	}
}

func TestRetryPreservesRecordedTarget(t *testing.T) {
	c, s, a, _ := newTestController(t, RetryParams{}, 1, 2*time.Millisecond)
	defer a.CancelAll()

	if _, err := c.Command("out", VerbSetTo, 10); err != nil {
		t.Fatalf("Command: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		m, _ := s.Measure("out")
		return m.Value >= 9.5
	}, "actuation should reach the band")

	// The retry path re-invokes actuation toward the recorded target; the
	// target must not drift.
	c.CheckCommand("out", 1)
	_, m, _ := s.CommandView("out")
	if m.TargetValue != 10 {
		t.Errorf("retry changed target: %v", m.TargetValue)
	}
}
