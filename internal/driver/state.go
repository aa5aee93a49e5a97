package driver

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Phase describes where a command sits in its lifecycle.
type Phase string

const (
	// PhaseIdle means no command is outstanding for the output.
	PhaseIdle Phase = "idle"

	// PhaseIssuing means a command is outstanding and still converging.
	PhaseIssuing Phase = "issuing"

	// PhaseStalled means a command is outstanding, progress has stopped,
	// and the retry budget is exhausted. The command is still considered
	// issuing; the phase exists so observers can tell the two apart.
	PhaseStalled Phase = "stalled"
)

// Measure is an observed quantity. Free-running measures are refreshed with
// sensor noise each tick; controlled measures (HasTarget) are moved by
// actuation tasks.
type Measure struct {
	ID   string
	Kind string
	Unit string

	Value float64

	// NoiseMin and NoiseMax bound the uniform noise refresh for
	// free-running measures. Unused when HasTarget is true.
	NoiseMin float64
	NoiseMax float64

	// HasTarget is true when the measure is linked to exactly one command.
	HasTarget     bool
	TargetValue   float64
	PreviousValue float64
}

// Command is a controllable output linked to a measure.
type Command struct {
	ID            string
	LinkedMeasure string

	Min float64
	Max float64

	SupportedVerbs []Verb

	// Issuing is true from command() until the convergence check clears it.
	Issuing bool

	// Stalled marks an issuing command whose retry budget ran out without
	// convergence. Cleared on the next command() or on convergence.
	Stalled bool

	LastVerb   Verb
	LastTarget float64

	// IssueID identifies the most recent issuance for event correlation.
	IssueID string

	// Retries only ever increases within the lifetime of a driver instance.
	Retries int
}

func (c *Command) supports(v Verb) bool {
	for _, s := range c.SupportedVerbs {
		if s == v {
			return true
		}
	}
	return false
}

// State is the shared data store for one driver instance: measures, commands,
// and connection health. All mutation goes through named transition methods;
// iteration over measures and commands follows registration order.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type State struct {
	mu sync.Mutex

	measures     map[string]*Measure
	commands     map[string]*Command
	measureOrder []string
	commandOrder []string

	connected         bool
	failedConnections int
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		measures: make(map[string]*Measure),
		commands: make(map[string]*Command),
	}
}

// AddMeasure registers a measure. Registration order is preserved for
// iteration.
func (s *State) AddMeasure(m Measure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.measures[m.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMeasure, m.ID)
	}

	rec := m
	s.measures[m.ID] = &rec
	s.measureOrder = append(s.measureOrder, m.ID)
	return nil
}

// AddCommand registers a command and links its measure. The linked measure
// must already exist and must not be controlled by another command.
func (s *State) AddCommand(c Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.commands[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, c.ID)
	}
	m, ok := s.measures[c.LinkedMeasure]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMeasure, c.LinkedMeasure)
	}
	if m.HasTarget {
		return fmt.Errorf("%w: %s", ErrMeasureAlreadyLinked, c.LinkedMeasure)
	}

	m.HasTarget = true
	m.TargetValue = m.Value
	m.PreviousValue = m.Value

	rec := c
	s.commands[c.ID] = &rec
	s.commandOrder = append(s.commandOrder, c.ID)
	return nil
}

// MeasureIDs returns measure IDs in registration order.
func (s *State) MeasureIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.measureOrder))
	copy(out, s.measureOrder)
	return out
}

// CommandIDs returns command IDs in registration order.
func (s *State) CommandIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commandOrder))
	copy(out, s.commandOrder)
	return out
}

// Measure returns a copy of the named measure.
func (s *State) Measure(id string) (Measure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.measures[id]
	if !ok {
		return Measure{}, false
	}
	return *m, true
}

// Command returns a copy of the named command.
func (s *State) Command(id string) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// CommandView returns consistent copies of a command and its linked measure,
// taken under one lock acquisition.
func (s *State) CommandView(id string) (Command, Measure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok {
		return Command{}, Measure{}, false
	}
	m := s.measures[c.LinkedMeasure]
	return *c, *m, true
}

// SetMeasureValue assigns a free-running measure's value. Used by the
// sampling tick for sensor-noise refresh.
func (s *State) SetMeasureValue(id string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.measures[id]; ok {
		m.Value = value
	}
}

// BeginCommand records a new issuance: sets issuing, clears any stall flag,
// stores the verb/target pair for retries, snapshots previousValue, and sets
// the measure's target.
func (s *State) BeginCommand(commandID, issueID string, verb Verb, target float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commands[commandID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, commandID)
	}
	m := s.measures[c.LinkedMeasure]

	c.Issuing = true
	c.Stalled = false
	c.LastVerb = verb
	c.LastTarget = target
	c.IssueID = issueID

	m.PreviousValue = m.Value
	m.TargetValue = target
	return nil
}

// RecordRetry increments the retry counter and re-snapshots previousValue.
func (s *State) RecordRetry(commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[commandID]
	if !ok {
		return
	}
	c.Retries++
	s.measures[c.LinkedMeasure].PreviousValue = s.measures[c.LinkedMeasure].Value
}

// ClearIssuing marks a command satisfied.
func (s *State) ClearIssuing(commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.commands[commandID]; ok {
		c.Issuing = false
		c.Stalled = false
	}
}

// MarkStalled flags an issuing command whose retry budget is exhausted.
// Returns true only on the transition, so callers can report it once.
func (s *State) MarkStalled(commandID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[commandID]
	if !ok || !c.Issuing || c.Stalled {
		return false
	}
	c.Stalled = true
	return true
}

// CommitTick snapshots previousValue = value for a command's linked measure.
// The sampling tick calls this after the convergence/retry evaluation so the
// next evaluation compares against this tick's value.
func (s *State) CommitTick(commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[commandID]
	if !ok {
		return
	}
	m := s.measures[c.LinkedMeasure]
	m.PreviousValue = m.Value
}

// StepToward moves a command's linked measure one fixed step toward its
// target, clamped to the command bounds and never overshooting the target.
// moved is false when the value cannot advance (already at target, or pinned
// at a bound).
func (s *State) StepToward(commandID string, step float64) (value, target float64, moved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commands[commandID]
	if !ok {
		return 0, 0, false
	}
	m := s.measures[c.LinkedMeasure]
	target = m.TargetValue

	next := m.Value
	switch {
	case target > m.Value:
		next = math.Min(m.Value+step, target)
	case target < m.Value:
		next = math.Max(m.Value-step, target)
	}

	if next > c.Max {
		next = c.Max
	}
	if next < c.Min {
		next = c.Min
	}

	if next == m.Value {
		return m.Value, target, false
	}
	m.Value = next
	return next, target, true
}

// SetConnected records connection status.
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Connected reports connection status.
func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// RecordFailedConnection marks the link down and increments the failure
// counter, returning the new count.
func (s *State) RecordFailedConnection() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.failedConnections++
	return s.failedConnections
}

// ResetFailedConnections zeroes the failure counter after a successful
// connection.
func (s *State) ResetFailedConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedConnections = 0
}

// FailedConnections returns the consecutive connection failure count.
func (s *State) FailedConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedConnections
}

// MeasureSnapshot is a read-only view of one measure.
type MeasureSnapshot struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Unit          string  `json:"unit,omitempty"`
	Value         float64 `json:"value"`
	HasTarget     bool    `json:"has_target"`
	TargetValue   float64 `json:"target_value,omitempty"`
	PreviousValue float64 `json:"previous_value,omitempty"`
}

// CommandSnapshot is a read-only view of one command.
type CommandSnapshot struct {
	ID            string  `json:"id"`
	LinkedMeasure string  `json:"linked_measure"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Verbs         []Verb  `json:"verbs"`
	Phase         Phase   `json:"phase"`
	LastVerb      Verb    `json:"last_verb,omitempty"`
	LastTarget    float64 `json:"last_target"`
	IssueID       string  `json:"issue_id,omitempty"`
	Retries       int     `json:"retries"`
}

// Snapshot is a deep, read-only copy of the full device state. Consumers
// (display, telemetry, history) cannot mutate the live state through it.
type Snapshot struct {
	Connected         bool              `json:"connected"`
	FailedConnections int               `json:"failed_connections"`
	Measures          []MeasureSnapshot `json:"measures"`
	Commands          []CommandSnapshot `json:"commands"`
	TakenAt           time.Time         `json:"taken_at"`
}

// Snapshot returns a deep copy of the current state in registration order.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Connected:         s.connected,
		FailedConnections: s.failedConnections,
		Measures:          make([]MeasureSnapshot, 0, len(s.measureOrder)),
		Commands:          make([]CommandSnapshot, 0, len(s.commandOrder)),
		TakenAt:           time.Now().UTC(),
	}

	for _, id := range s.measureOrder {
		m := s.measures[id]
		snap.Measures = append(snap.Measures, MeasureSnapshot{
			ID:            m.ID,
			Kind:          m.Kind,
			Unit:          m.Unit,
			Value:         m.Value,
			HasTarget:     m.HasTarget,
			TargetValue:   m.TargetValue,
			PreviousValue: m.PreviousValue,
		})
	}

	for _, id := range s.commandOrder {
		c := s.commands[id]
		verbs := make([]Verb, len(c.SupportedVerbs))
		copy(verbs, c.SupportedVerbs)

		phase := PhaseIdle
		if c.Issuing {
			phase = PhaseIssuing
			if c.Stalled {
				phase = PhaseStalled
			}
		}

		snap.Commands = append(snap.Commands, CommandSnapshot{
			ID:            c.ID,
			LinkedMeasure: c.LinkedMeasure,
			Min:           c.Min,
			Max:           c.Max,
			Verbs:         verbs,
			Phase:         phase,
			LastVerb:      c.LastVerb,
			LastTarget:    c.LastTarget,
			IssueID:       c.IssueID,
			Retries:       c.Retries,
		})
	}

	return snap
}
