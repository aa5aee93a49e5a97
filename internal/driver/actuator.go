package driver

import (
	"math"
	"sync"
	"time"
)

// Actuator models slow physical actuation. Each Start launches a task that
// moves the command's linked measure toward its target in fixed-size steps at
// a fixed real-time interval, halting once the value crosses the convergence
// band or can no longer advance.
//
// Tasks are serialized per command with cancel-and-restart: Start for a
// command with a task still running cancels the old task before launching
// the new one, so two tasks never race on the same measure.
type Actuator struct {
	state    *State
	step     float64
	interval time.Duration
	band     float64
	logger   Logger

	mu    sync.Mutex
	tasks map[string]*actuationTask
}

type actuationTask struct {
	cancel   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (t *actuationTask) stop() {
	t.stopOnce.Do(func() { close(t.cancel) })
}

// NewActuator creates an Actuator.
//
// step is the fixed magnitude moved per interval. band is the fraction of
// the target at which actuation halts (0.95 halts once the value is within
// 5% of the target).
func NewActuator(state *State, step float64, interval time.Duration, band float64, logger Logger) *Actuator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Actuator{
		state:    state,
		step:     step,
		interval: interval,
		band:     band,
		logger:   logger,
		tasks:    make(map[string]*actuationTask),
	}
}

// Start launches an actuation task for the command, cancelling and waiting
// out any task still running for the same command first.
func (a *Actuator) Start(commandID string) {
	a.mu.Lock()
	for {
		prev := a.tasks[commandID]
		if prev == nil {
			break
		}
		prev.stop()
		a.mu.Unlock()
		<-prev.done
		a.mu.Lock()
	}

	t := &actuationTask{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	a.tasks[commandID] = t
	a.mu.Unlock()

	go a.run(commandID, t)
}

// Running reports whether an actuation task is in flight for the command.
func (a *Actuator) Running(commandID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tasks[commandID] != nil
}

// Cancel stops the command's actuation task, if any, and waits for it to
// exit. Returns true if a task was cancelled.
func (a *Actuator) Cancel(commandID string) bool {
	a.mu.Lock()
	t := a.tasks[commandID]
	a.mu.Unlock()

	if t == nil {
		return false
	}
	t.stop()
	<-t.done
	return true
}

// CancelAll stops every in-flight actuation task and waits for each to exit.
// It returns the IDs of commands whose tasks were cancelled.
func (a *Actuator) CancelAll() []string {
	a.mu.Lock()
	pending := make(map[string]*actuationTask, len(a.tasks))
	for id, t := range a.tasks {
		pending[id] = t
	}
	a.mu.Unlock()

	var cancelled []string
	for id, t := range pending {
		t.stop()
		<-t.done
		cancelled = append(cancelled, id)
	}
	return cancelled
}

func (a *Actuator) run(commandID string, t *actuationTask) {
	defer close(t.done)
	defer a.clear(commandID, t)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.cancel:
			a.logger.Debug("actuation cancelled", "command", commandID)
			return
		case <-ticker.C:
			value, target, moved := a.state.StepToward(commandID, a.step)
			if !moved {
				a.logger.Debug("actuation halted, value pinned", "command", commandID, "value", value)
				return
			}
			if withinBand(value, target, a.band) {
				a.logger.Debug("actuation reached convergence band",
					"command", commandID, "value", value, "target", target)
				return
			}
		}
	}
}

// clear removes the task entry unless a newer task has replaced it.
func (a *Actuator) clear(commandID string, t *actuationTask) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tasks[commandID] == t {
		delete(a.tasks, commandID)
	}
}

// withinBand reports whether value has crossed the convergence band: the
// remaining distance to target is at most (1-band) of the target magnitude.
func withinBand(value, target, band float64) bool {
	return math.Abs(value-target) <= (1-band)*math.Abs(target)
}
