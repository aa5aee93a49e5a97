package driver

import (
	"sync"
	"time"
)

// Connection manages the simulated link lifecycle.
//
// Connect draws one uniform value per attempt: below the rejection
// percentage the attempt fails, incrementing failedConnections and, while
// the attempt budget allows, scheduling a retry after a fixed delay. A
// successful attempt resets the failure counter and starts the sampling
// scheduler.
//
// Disconnect halts the scheduler deterministically and cancels every
// in-flight actuation task. Measure and command state survives disconnect
// and reconnect; only the tick loop and actuation stop.
type Connection struct {
	state     *State
	scheduler *Scheduler
	actuator  *Actuator
	source    Source

	// rejectionPercentage is the probability (0-100) an attempt fails.
	rejectionPercentage float64

	// retryDelay is the fixed wait before an automatic reattempt.
	retryDelay time.Duration

	// maxAttempts bounds consecutive failures. 0 means retry forever.
	maxAttempts int

	logger Logger

	// onCancelled receives the command IDs whose actuation tasks a
	// disconnect cancelled.
	onCancelled func(ids []string)

	mu            sync.Mutex
	retryTimer    *time.Timer
	stopRequested bool
}

// NewConnection creates a Connection. onCancelled may be nil.
func NewConnection(state *State, scheduler *Scheduler, actuator *Actuator, source Source, rejectionPercentage float64, retryDelay time.Duration, maxAttempts int, logger Logger, onCancelled func([]string)) *Connection {
	if logger == nil {
		logger = noopLogger{}
	}
	if onCancelled == nil {
		onCancelled = func([]string) {}
	}
	return &Connection{
		state:               state,
		scheduler:           scheduler,
		actuator:            actuator,
		source:              source,
		rejectionPercentage: rejectionPercentage,
		retryDelay:          retryDelay,
		maxAttempts:         maxAttempts,
		logger:              logger,
		onCancelled:         onCancelled,
	}
}

// Connect starts the connection attempt sequence. The first attempt runs
// synchronously; rejected attempts reschedule themselves after the fixed
// retry delay until the attempt budget runs out or Disconnect is called.
func (c *Connection) Connect() {
	c.mu.Lock()
	c.stopRequested = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	c.attempt()
}

// Disconnect tears the link down: no further automatic reconnection, the
// scheduler is stopped, and in-flight actuation tasks are cancelled.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.stopRequested = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	c.state.SetConnected(false)
	c.scheduler.Stop()

	if cancelled := c.actuator.CancelAll(); len(cancelled) > 0 {
		c.logger.Info("disconnect cancelled in-flight actuation", "commands", cancelled)
		c.onCancelled(cancelled)
	}

	c.logger.Info("disconnected")
}

// HandleDrop reacts to spontaneous link loss detected by a sampling tick.
// The scheduler has already exited its loop; this marks the link down,
// cancels actuation, and schedules a reconnection attempt.
func (c *Connection) HandleDrop() {
	c.state.SetConnected(false)

	if cancelled := c.actuator.CancelAll(); len(cancelled) > 0 {
		c.logger.Info("link loss cancelled in-flight actuation", "commands", cancelled)
		c.onCancelled(cancelled)
	}

	c.logger.Warn("link lost, scheduling reconnection", "delay", c.retryDelay)
	c.scheduleRetry()
}

// attempt runs one connection attempt.
func (c *Connection) attempt() {
	c.mu.Lock()
	if c.stopRequested {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if c.source.Float64InRange(0, 100) < c.rejectionPercentage {
		failed := c.state.RecordFailedConnection()

		if c.maxAttempts == 0 || failed < c.maxAttempts {
			c.logger.Warn("connection attempt rejected, retrying",
				"failed_connections", failed, "delay", c.retryDelay)
			c.scheduleRetry()
		} else {
			// Terminal failure: the caller must Connect again explicitly.
			c.logger.Error("connection attempts exhausted",
				"failed_connections", failed, "max_attempts", c.maxAttempts)
		}
		return
	}

	// The rejection draw runs outside the lock, so a Disconnect may have
	// landed while it was in flight. Re-check before committing.
	c.mu.Lock()
	if c.stopRequested {
		c.mu.Unlock()
		return
	}
	c.state.ResetFailedConnections()
	c.state.SetConnected(true)
	c.scheduler.Start()
	c.mu.Unlock()
	c.logger.Info("connected")
}

func (c *Connection) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopRequested {
		return
	}
	c.retryTimer = time.AfterFunc(c.retryDelay, c.attempt)
}
