package mqtt

import (
	"github.com/Eventect/roastsight-core/internal/driver"
)

// measureStatePayload is the JSON shape published on measure state topics.
type measureStatePayload struct {
	MeasureID string  `json:"measure_id"`
	Kind      string  `json:"kind"`
	Unit      string  `json:"unit,omitempty"`
	Value     float64 `json:"value"`
	Target    float64 `json:"target,omitempty"`
	Phase     string  `json:"phase,omitempty"`
	TakenAt   string  `json:"taken_at"`
}

// Publisher implements driver.Observer: every sampling tick it publishes one
// retained state message per measure, and command lifecycle events go to the
// event topic as they happen.
//
// Publishing is fire-and-forget from the tick's perspective; a buffered
// channel decouples the sampling loop from broker round-trips.
type Publisher struct {
	client *Client
	topics Topics

	work chan func()
	stop chan struct{}
	done chan struct{}
}

// publisherBuffer is the queue depth between the tick and the broker.
const publisherBuffer = 256

// NewPublisher creates and starts a Publisher over a connected client.
func NewPublisher(client *Client) *Publisher {
	p := &Publisher{
		client: client,
		work:   make(chan func(), publisherBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// ObserveTick publishes retained per-measure state from the snapshot.
func (p *Publisher) ObserveTick(snap driver.Snapshot) {
	p.enqueue(func() {
		phases := make(map[string]driver.Phase, len(snap.Commands))
		for _, c := range snap.Commands {
			phases[c.LinkedMeasure] = c.Phase
		}

		for _, m := range snap.Measures {
			payload := measureStatePayload{
				MeasureID: m.ID,
				Kind:      m.Kind,
				Unit:      m.Unit,
				Value:     m.Value,
				TakenAt:   snap.TakenAt.Format("2006-01-02T15:04:05.000Z07:00"),
			}
			if m.HasTarget {
				payload.Target = m.TargetValue
				payload.Phase = string(phases[m.ID])
			}

			if err := p.client.PublishJSON(p.topics.MeasureState(m.ID), payload, true); err != nil {
				if logger := p.client.getLogger(); logger != nil {
					logger.Warn("publishing measure state failed", "measure", m.ID, "error", err)
				}
			}
		}
	})
}

// ObserveCommand publishes one command lifecycle event, not retained.
func (p *Publisher) ObserveCommand(ev driver.CommandEvent) {
	p.enqueue(func() {
		if err := p.client.PublishJSON(p.topics.CommandEvent(), ev, false); err != nil {
			if logger := p.client.getLogger(); logger != nil {
				logger.Warn("publishing command event failed", "command", ev.CommandID, "error", err)
			}
		}
	})
}

// Close stops the publishing loop; queued work is abandoned.
func (p *Publisher) Close() {
	close(p.stop)
	<-p.done
}

func (p *Publisher) enqueue(fn func()) {
	select {
	case p.work <- fn:
	default:
		if logger := p.client.getLogger(); logger != nil {
			logger.Warn("telemetry publisher saturated, dropping message")
		}
	}
}

func (p *Publisher) loop() {
	defer close(p.done)
	for {
		select {
		case fn := <-p.work:
			fn()
		case <-p.stop:
			return
		}
	}
}
