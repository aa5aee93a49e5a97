package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Eventect/roastsight-core/internal/driver"
)

// WriteSnapshot writes one point per measure from a driver snapshot.
//
// Points are tagged with the measure identifier and kind so queries can
// group by channel. Controlled measures additionally carry their target
// and issuing state.
//
// Writes are non-blocking: points are buffered and flushed in batches by
// the write API. Errors surface via the SetOnError callback.
func (c *Client) WriteSnapshot(snap driver.Snapshot) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	issuing := make(map[string]bool, len(snap.Commands))
	for _, cmd := range snap.Commands {
		if cmd.Phase != driver.PhaseIdle {
			issuing[cmd.LinkedMeasure] = true
		}
	}

	for _, m := range snap.Measures {
		fields := map[string]interface{}{
			"value": m.Value,
		}
		if m.HasTarget {
			fields["target"] = m.TargetValue
			fields["issuing"] = issuing[m.ID]
		}

		point := write.NewPoint(
			"measures",
			map[string]string{
				"measure_id": m.ID,
				"kind":       m.Kind,
				"unit":       m.Unit,
			},
			fields,
			snap.TakenAt,
		)
		c.writeAPI.WritePoint(point)
	}

	return nil
}

// ObserveTick buffers every measure in the snapshot for batched write.
// Implements driver.Observer; the underlying write API never blocks.
func (c *Client) ObserveTick(snap driver.Snapshot) {
	_ = c.WriteSnapshot(snap)
}

// ObserveCommand buffers a command event for batched write.
// Implements driver.Observer.
func (c *Client) ObserveCommand(event driver.CommandEvent) {
	_ = c.WriteCommandEvent(event)
}

// WriteCommandEvent writes a command lifecycle event as a time-series point.
func (c *Client) WriteCommandEvent(event driver.CommandEvent) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := write.NewPoint(
		"command_events",
		map[string]string{
			"command_id": event.CommandID,
			"event":      event.Event,
			"verb":       event.Verb.String(),
		},
		map[string]interface{}{
			"issue_id": event.IssueID,
			"target":   event.Target,
			"value":    event.Value,
			"retries":  event.Retries,
		},
		event.At,
	)
	c.writeAPI.WritePoint(point)

	return nil
}
