package driver

import (
	"testing"
	"time"
)

func newTestConnection(t *testing.T, source Source, rejectionPct float64, maxAttempts int, onCancelled func([]string)) (*Connection, *State, *Scheduler, *Actuator) {
	t.Helper()
	s := newTestState(t)
	a := NewActuator(s, 1, time.Hour, 0.95, nil)
	c := NewController(s, a, RetryParams{}, 1, 0.01, nil, nil)
	sched := NewScheduler(s, c, source, time.Hour, 0, nil, nil, nil)
	conn := NewConnection(s, sched, a, source, rejectionPct, 2*time.Millisecond, maxAttempts, nil, onCancelled)
	return conn, s, sched, a
}

// With 100% rejection every attempt fails and failedConnections increments
// on each one.
func TestConnectAlwaysRejected(t *testing.T) {
	conn, s, sched, _ := newTestConnection(t, newFakeSource(50), 100, 3, nil)

	conn.Connect()

	waitFor(t, time.Second, func() bool {
		return s.FailedConnections() == 3
	}, "attempts should run up to the limit")

	// Terminal failure: no further attempts.
	time.Sleep(10 * time.Millisecond)
	if s.FailedConnections() != 3 {
		t.Errorf("expected failures capped at 3, got %d", s.FailedConnections())
	}
	if s.Connected() {
		t.Error("expected connected false after terminal failure")
	}
	if sched.Running() {
		t.Error("scheduler must not start on failed connection")
	}
}

// With 0% rejection the first attempt succeeds.
func TestConnectNeverRejected(t *testing.T) {
	conn, s, sched, _ := newTestConnection(t, newFakeSource(50), 0, 0, nil)

	conn.Connect()

	if !s.Connected() {
		t.Fatal("expected connected true on first attempt")
	}
	if s.FailedConnections() != 0 {
		t.Errorf("expected zero failures, got %d", s.FailedConnections())
	}
	if !sched.Running() {
		t.Error("expected scheduler started")
	}

	conn.Disconnect()
	if s.Connected() {
		t.Error("expected connected false after disconnect")
	}
	if sched.Running() {
		t.Error("expected scheduler stopped after disconnect")
	}
}

// Success after failures resets the counter.
func TestConnectRetriesUntilSuccess(t *testing.T) {
	// Draws: 10 (rejected at 50%), 10 (rejected), 90 (accepted).
	source := newFakeSource(10, 10, 90)
	conn, s, sched, _ := newTestConnection(t, source, 50, 0, nil)

	conn.Connect()

	waitFor(t, time.Second, func() bool {
		return s.Connected()
	}, "connection should eventually succeed")

	if s.FailedConnections() != 0 {
		t.Errorf("expected counter reset on success, got %d", s.FailedConnections())
	}
	conn.Disconnect()
	_ = sched
}

func TestDisconnectStopsPendingRetry(t *testing.T) {
	conn, s, _, _ := newTestConnection(t, newFakeSource(50), 100, 0, nil)

	conn.Connect() // first attempt fails, retry scheduled

	waitFor(t, time.Second, func() bool {
		return s.FailedConnections() >= 1
	}, "first attempt should fail")

	conn.Disconnect()
	failed := s.FailedConnections()

	time.Sleep(15 * time.Millisecond)
	if s.FailedConnections() != failed {
		t.Errorf("retry ran after disconnect: %d -> %d", failed, s.FailedConnections())
	}
}

// gatedSource blocks inside the draw until released, exposing the window
// between an attempt starting and its outcome being committed.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) Float64InRange(min, max float64) float64 {
	g.entered <- struct{}{}
	<-g.release
	return min
}

// A Disconnect that lands while an attempt's rejection draw is in flight
// must win: the attempt may not commit a connection afterwards.
func TestDisconnectDuringInFlightAttempt(t *testing.T) {
	source := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	conn, s, sched, _ := newTestConnection(t, source, 0, 0, nil)

	done := make(chan struct{})
	go func() {
		conn.Connect()
		close(done)
	}()

	<-source.entered
	conn.Disconnect()
	close(source.release)
	<-done

	if s.Connected() {
		t.Error("attempt committed a connection after Disconnect returned")
	}
	if sched.Running() {
		t.Error("attempt started the scheduler after Disconnect returned")
	}
}

// A second Connect while a retry is pending replaces the pending timer
// instead of letting two attempt chains run side by side.
func TestConnectReplacesPendingRetry(t *testing.T) {
	s := newTestState(t)
	a := NewActuator(s, 1, time.Hour, 0.95, nil)
	c := NewController(s, a, RetryParams{}, 1, 0.01, nil, nil)
	sched := NewScheduler(s, c, newFakeSource(50), time.Hour, 0, nil, nil, nil)
	conn := NewConnection(s, sched, a, newFakeSource(50), 100, 50*time.Millisecond, 2, nil, nil)

	conn.Connect() // failure 1, retry pending
	conn.Connect() // failure 2, terminal

	if got := s.FailedConnections(); got != 2 {
		t.Fatalf("expected 2 failures after two explicit attempts, got %d", got)
	}

	// The first attempt's retry timer would fire around 50ms; had it
	// survived, a third failure would land.
	time.Sleep(75 * time.Millisecond)
	if got := s.FailedConnections(); got != 2 {
		t.Errorf("retry from the first chain ran after reconnect: expected 2 failures, got %d", got)
	}
}

func TestHandleDropCancelsActuationAndReconnects(t *testing.T) {
	var gotCancelled []string
	conn, s, sched, a := newTestConnection(t, newFakeSource(90), 50, 0, func(ids []string) {
		gotCancelled = ids
	})

	if err := s.BeginCommand("out", "i", VerbSetTo, 40); err != nil {
		t.Fatalf("BeginCommand: %v", err)
	}
	a.Start("out")

	conn.HandleDrop()

	if a.Running("out") {
		t.Error("expected actuation cancelled on drop")
	}
	if len(gotCancelled) != 1 || gotCancelled[0] != "out" {
		t.Errorf("expected cancelled callback for out, got %v", gotCancelled)
	}
	if s.Connected() {
		t.Error("expected connected false after drop")
	}

	// The drop schedules a reconnection attempt; 90 beats 50% rejection.
	waitFor(t, time.Second, func() bool {
		return s.Connected()
	}, "reconnection should succeed")
	conn.Disconnect()
	_ = sched
}
