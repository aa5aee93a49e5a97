// Package influxdb provides time-series telemetry storage for measure
// samples and command lifecycle events.
//
// The client wraps the InfluxDB v2 Go client with non-blocking batched
// writes: points are buffered in memory and flushed on a configurable
// interval or batch size, so the sampling tick never waits on the network.
// Write errors are delivered asynchronously via the SetOnError callback.
//
// The client implements driver.Observer, so it can be attached directly
// to the driver alongside the history recorder and MQTT publisher:
//
//	influx, err := influxdb.Connect(cfg.Telemetry.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer influx.Close()
//	drv.AddObserver(influx)
//
// Telemetry is optional: Connect returns ErrDisabled when the feature is
// switched off in configuration, and callers skip the wiring.
package influxdb
