package driver

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the driver's recognised options.
type Config struct {
	// ConnectionRejectionPercentage is the probability (0-100) that a
	// connection attempt is rejected.
	ConnectionRejectionPercentage float64

	// SamplingInterval is the tick period.
	SamplingInterval time.Duration

	// ReconnectDelay is the fixed wait before an automatic reattempt.
	ReconnectDelay time.Duration

	// MaxReconnectionAttempts bounds consecutive failures. 0 = unlimited.
	MaxReconnectionAttempts int

	// CommandRetryLimited enables the retry budget.
	CommandRetryLimited bool

	// MaxNumberOfRetries is the inclusive retry budget, consulted only
	// when CommandRetryLimited is true.
	MaxNumberOfRetries int

	// RetryFrequency throttles retry evaluation to every Nth tick.
	RetryFrequency int

	// DisconnectionOnUpdatePercentage is the per-tick probability (0-100)
	// of spontaneous link loss.
	DisconnectionOnUpdatePercentage float64

	// ActuationStep is the fixed magnitude moved per actuation interval.
	ActuationStep float64

	// ActuationStepInterval is the real-time delay between actuation steps.
	ActuationStepInterval time.Duration

	// ConvergenceBand is the fraction of the target at which actuation
	// halts.
	ConvergenceBand float64

	// ConvergenceTolerance is the relative tolerance of the per-tick
	// convergence check.
	ConvergenceTolerance float64
}

// DefaultConfig returns the driver defaults used when no configuration file
// is supplied.
func DefaultConfig() Config {
	return Config{
		ConnectionRejectionPercentage:   10,
		SamplingInterval:                time.Second,
		ReconnectDelay:                  2 * time.Second,
		MaxReconnectionAttempts:         0,
		CommandRetryLimited:             true,
		MaxNumberOfRetries:              3,
		RetryFrequency:                  1,
		DisconnectionOnUpdatePercentage: 0,
		ActuationStep:                   1,
		ActuationStepInterval:           100 * time.Millisecond,
		ConvergenceBand:                 0.95,
		ConvergenceTolerance:            0.01,
	}
}

// AboutMeasure describes one measure in the rig's static metadata.
type AboutMeasure struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Unit string `json:"unit,omitempty"`
}

// AboutCommand describes one command in the rig's static metadata.
type AboutCommand struct {
	ID            string  `json:"id"`
	LinkedMeasure string  `json:"linked_measure"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Verbs         []Verb  `json:"verbs"`
}

// About is static descriptive metadata for the rig.
type About struct {
	Name     string         `json:"name"`
	Vendor   string         `json:"vendor,omitempty"`
	Model    string         `json:"model,omitempty"`
	Measures []AboutMeasure `json:"measures"`
	Commands []AboutCommand `json:"commands"`
}

// Driver is the simulated device driver. It owns the shared state and wires
// the connection manager, sampling scheduler, command controller, and
// actuator together behind the surface an application consumes.
type Driver struct {
	cfg     Config
	profile Profile

	state      *State
	actuator   *Actuator
	controller *Controller
	scheduler  *Scheduler
	connection *Connection

	logger Logger

	obsMu     sync.Mutex
	observers []Observer
}

// Option customises driver construction.
type Option func(*options)

type options struct {
	logger Logger
	source Source
}

// WithLogger sets the driver's logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSource injects the uniform random source. Tests use this for
// deterministic behaviour.
func WithSource(s Source) Option {
	return func(o *options) { o.source = s }
}

// New builds a Driver from a config and a rig profile.
func New(cfg Config, profile Profile, opts ...Option) (*Driver, error) {
	o := options{
		logger: noopLogger{},
		source: NewSource(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.RetryFrequency < 1 {
		cfg.RetryFrequency = 1
	}
	if cfg.SamplingInterval <= 0 {
		return nil, fmt.Errorf("driver: sampling interval must be positive")
	}
	if cfg.ActuationStep <= 0 || cfg.ActuationStepInterval <= 0 {
		return nil, fmt.Errorf("driver: actuation step and interval must be positive")
	}
	if cfg.ConvergenceBand <= 0 || cfg.ConvergenceBand > 1 {
		return nil, fmt.Errorf("driver: convergence band must be in (0, 1]")
	}

	state := NewState()
	for _, m := range profile.Measures {
		if err := state.AddMeasure(Measure{
			ID:       m.ID,
			Kind:     m.Kind,
			Unit:     m.Unit,
			Value:    m.Initial,
			NoiseMin: m.NoiseMin,
			NoiseMax: m.NoiseMax,
		}); err != nil {
			return nil, err
		}
	}
	for _, c := range profile.Commands {
		if err := state.AddCommand(Command{
			ID:             c.ID,
			LinkedMeasure:  c.LinkedMeasure,
			Min:            c.Min,
			Max:            c.Max,
			SupportedVerbs: c.Verbs,
		}); err != nil {
			return nil, err
		}
	}

	d := &Driver{
		cfg:     cfg,
		profile: profile,
		state:   state,
		logger:  o.logger,
	}

	d.actuator = NewActuator(state, cfg.ActuationStep, cfg.ActuationStepInterval, cfg.ConvergenceBand, o.logger)

	d.controller = NewController(state, d.actuator,
		RetryParams{Limited: cfg.CommandRetryLimited, MaxRetries: cfg.MaxNumberOfRetries},
		cfg.RetryFrequency, cfg.ConvergenceTolerance, o.logger, d.emitCommand)

	d.scheduler = NewScheduler(state, d.controller, o.source,
		cfg.SamplingInterval, cfg.DisconnectionOnUpdatePercentage, o.logger,
		d.emitTick, func() { d.connection.HandleDrop() })

	d.connection = NewConnection(state, d.scheduler, d.actuator, o.source,
		cfg.ConnectionRejectionPercentage, cfg.ReconnectDelay, cfg.MaxReconnectionAttempts,
		o.logger, d.emitCancelled)

	return d, nil
}

// Connect starts the connection attempt sequence.
func (d *Driver) Connect() {
	d.connection.Connect()
}

// Disconnect tears the link down, stopping the sampling loop and cancelling
// in-flight actuation. Accumulated measure and command state survives.
func (d *Driver) Disconnect() {
	d.connection.Disconnect()
}

// Command issues verb/target against a command and returns the issue ID.
func (d *Driver) Command(commandID string, verb Verb, target float64) (string, error) {
	return d.controller.Command(commandID, verb, target)
}

// Snapshot returns a read-only copy of the device state.
func (d *Driver) Snapshot() Snapshot {
	return d.state.Snapshot()
}

// Params returns the driver's configuration.
func (d *Driver) Params() Config {
	return d.cfg
}

// Connected reports link status.
func (d *Driver) Connected() bool {
	return d.state.Connected()
}

// About returns the rig's static metadata.
func (d *Driver) About() About {
	about := About{
		Name:     d.profile.Name,
		Vendor:   d.profile.Vendor,
		Model:    d.profile.Model,
		Measures: make([]AboutMeasure, 0, len(d.profile.Measures)),
		Commands: make([]AboutCommand, 0, len(d.profile.Commands)),
	}
	for _, m := range d.profile.Measures {
		about.Measures = append(about.Measures, AboutMeasure{ID: m.ID, Kind: m.Kind, Unit: m.Unit})
	}
	for _, c := range d.profile.Commands {
		verbs := make([]Verb, len(c.Verbs))
		copy(verbs, c.Verbs)
		about.Commands = append(about.Commands, AboutCommand{
			ID:            c.ID,
			LinkedMeasure: c.LinkedMeasure,
			Min:           c.Min,
			Max:           c.Max,
			Verbs:         verbs,
		})
	}
	return about
}

// AddObserver registers an observer for tick snapshots and command events.
func (d *Driver) AddObserver(o Observer) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = append(d.observers, o)
}

// Close disconnects the driver. Safe to call more than once.
func (d *Driver) Close() {
	d.Disconnect()
}

func (d *Driver) emitTick(snap Snapshot) {
	for _, o := range d.snapshotObservers() {
		o.ObserveTick(snap)
	}
}

func (d *Driver) emitCommand(ev CommandEvent) {
	for _, o := range d.snapshotObservers() {
		o.ObserveCommand(ev)
	}
}

// emitCancelled reports disconnect-cancelled actuation as command events.
func (d *Driver) emitCancelled(ids []string) {
	for _, id := range ids {
		cmd, m, ok := d.state.CommandView(id)
		if !ok {
			continue
		}
		d.emitCommand(CommandEvent{
			IssueID:   cmd.IssueID,
			CommandID: id,
			Event:     EventCancelled,
			Verb:      cmd.LastVerb,
			Target:    m.TargetValue,
			Value:     m.Value,
			Retries:   cmd.Retries,
			At:        time.Now().UTC(),
		})
	}
}

func (d *Driver) snapshotObservers() []Observer {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	out := make([]Observer, len(d.observers))
	copy(out, d.observers)
	return out
}
