package driver

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Controller accepts command requests, dispatches verbs to actuation, and
// evaluates convergence and retry for every command on each sampling tick.
type Controller struct {
	state    *State
	actuator *Actuator

	retry RetryParams

	// retryEvery throttles retry evaluation to every Nth tick. 1 evaluates
	// on every tick.
	retryEvery uint64

	// tolerance is the relative convergence tolerance: a command is
	// satisfied when |value - target| <= tolerance * |value|. At value 0
	// this degenerates to exact match.
	tolerance float64

	logger Logger
	emit   func(CommandEvent)

	// mu serializes issuance so actuation tasks are started one at a time
	// per controller.
	mu sync.Mutex
}

// NewController creates a Controller. emit may be nil when no one listens
// for command events.
func NewController(state *State, actuator *Actuator, retry RetryParams, retryEvery int, tolerance float64, logger Logger, emit func(CommandEvent)) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	if emit == nil {
		emit = func(CommandEvent) {}
	}
	if retryEvery < 1 {
		retryEvery = 1
	}
	return &Controller{
		state:      state,
		actuator:   actuator,
		retry:      retry,
		retryEvery: uint64(retryEvery),
		tolerance:  tolerance,
		logger:     logger,
		emit:       emit,
	}
}

// Command issues a new verb/target pair against a command. It resolves the
// verb to an absolute target, clamps it into the command's bounds, records
// the issuance, and starts actuation. The returned issue ID correlates the
// lifecycle events of this issuance.
//
// take_control is declared by the rig but drives nothing; it is acknowledged
// with an ignored event and leaves state untouched. Unknown verbs and verbs
// the command does not declare are rejected with ErrUnsupportedVerb.
func (c *Controller) Command(commandID string, verb Verb, target float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd, m, ok := c.state.CommandView(commandID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, commandID)
	}
	if !cmd.supports(verb) {
		return "", fmt.Errorf("%w: %s does not support %q", ErrUnsupportedVerb, commandID, verb)
	}

	issueID := uuid.NewString()

	var absolute float64
	switch verb {
	case VerbSetTo:
		absolute = target
	case VerbIncrease:
		absolute = m.Value + target
	case VerbDecrease:
		absolute = m.Value - target
	case VerbTakeControl:
		c.logger.Warn("verb performs no actuation, acknowledged only",
			"command", commandID, "verb", verb)
		c.emit(CommandEvent{
			IssueID:   issueID,
			CommandID: commandID,
			Event:     EventIgnored,
			Verb:      verb,
			Target:    target,
			Value:     m.Value,
			Retries:   cmd.Retries,
			At:        time.Now().UTC(),
		})
		return issueID, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVerb, verb)
	}

	// Targets outside the command's range are clamped, not rejected: the
	// physical rig saturates rather than faulting.
	if absolute > cmd.Max {
		absolute = cmd.Max
	}
	if absolute < cmd.Min {
		absolute = cmd.Min
	}

	if err := c.state.BeginCommand(commandID, issueID, verb, absolute); err != nil {
		return "", err
	}

	c.logger.Info("command issued",
		"command", commandID, "verb", verb, "target", absolute, "issue_id", issueID)
	c.emit(CommandEvent{
		IssueID:   issueID,
		CommandID: commandID,
		Event:     EventIssued,
		Verb:      verb,
		Target:    absolute,
		Value:     m.Value,
		Retries:   cmd.Retries,
		At:        time.Now().UTC(),
	})

	c.actuator.Start(commandID)
	return issueID, nil
}

// CheckCommand evaluates one command on a sampling tick. Two independent
// checks run in order:
//
//  1. Retry: when the retry policy fires, actuation is re-invoked with the
//     recorded verb/target and the retry counter advances. When the policy
//     is blocked only by an exhausted budget the command is marked stalled.
//     Evaluation is throttled to every Nth tick by retryEvery.
//  2. Convergence: an issuing command within tolerance of its target is
//     cleared. Both checks may act on the same tick.
//
// Calling CheckCommand on an idle command changes nothing.
func (c *Controller) CheckCommand(commandID string, tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd, m, ok := c.state.CommandView(commandID)
	if !ok {
		return
	}

	if cmd.Issuing && tick%c.retryEvery == 0 {
		if ShouldRetry(cmd.Issuing, m.Value, m.PreviousValue, m.TargetValue, cmd.Retries, c.retry) {
			c.retryCommand(cmd, m)
		} else if noProgress(m.Value, m.PreviousValue, m.TargetValue) {
			// Policy declined with progress stalled, so the budget is spent.
			if c.state.MarkStalled(commandID) {
				c.logger.Warn("command stalled, retry budget exhausted",
					"command", commandID, "value", m.Value, "target", m.TargetValue,
					"retries", cmd.Retries)
				c.emit(CommandEvent{
					IssueID:   cmd.IssueID,
					CommandID: commandID,
					Event:     EventStalled,
					Verb:      cmd.LastVerb,
					Target:    m.TargetValue,
					Value:     m.Value,
					Retries:   cmd.Retries,
					At:        time.Now().UTC(),
				})
			}
		}
	}

	if cmd.Issuing {
		// Re-read the value: a retry above may have re-snapshotted state,
		// but convergence compares the live value against the target.
		if _, cur, ok := c.state.CommandView(commandID); ok && converged(cur.Value, cur.TargetValue, c.tolerance) {
			c.state.ClearIssuing(commandID)
			c.logger.Info("command converged",
				"command", commandID, "value", cur.Value, "target", cur.TargetValue)
			c.emit(CommandEvent{
				IssueID:   cmd.IssueID,
				CommandID: commandID,
				Event:     EventConverged,
				Verb:      cmd.LastVerb,
				Target:    cur.TargetValue,
				Value:     cur.Value,
				Retries:   cmd.Retries,
				At:        time.Now().UTC(),
			})
		}
	}
}

// retryCommand re-invokes actuation toward the already-recorded target,
// advances the retry counter, and re-snapshots previousValue. Caller holds
// c.mu and supplies the pre-retry view of command and measure.
func (c *Controller) retryCommand(cmd Command, m Measure) {
	c.state.RecordRetry(cmd.ID)

	c.logger.Debug("command retried",
		"command", cmd.ID, "verb", cmd.LastVerb, "target", m.TargetValue,
		"retries", cmd.Retries+1)
	c.emit(CommandEvent{
		IssueID:   cmd.IssueID,
		CommandID: cmd.ID,
		Event:     EventRetried,
		Verb:      cmd.LastVerb,
		Target:    m.TargetValue,
		Value:     m.Value,
		Retries:   cmd.Retries + 1,
		At:        time.Now().UTC(),
	})

	c.actuator.Start(cmd.ID)
}

// converged reports whether value is within the relative tolerance of
// target. The tolerance scales with the current value, so it degenerates to
// exact match at value 0.
func converged(value, target, tolerance float64) bool {
	return math.Abs(value-target) <= tolerance*math.Abs(value)
}

// noProgress reports whether distance to target failed to strictly decrease.
func noProgress(value, previous, target float64) bool {
	return math.Abs(value-target) >= math.Abs(previous-target)
}
