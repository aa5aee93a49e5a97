// Package mqtt publishes RoastSight telemetry to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained per-measure state publishing after every sampling tick
//   - Command lifecycle event publishing
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// The simulator is publish-only: consumers (dashboards, alerting) subscribe
// to the roastsight/# topic tree; nothing flows back in over MQTT.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Telemetry.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	pub := mqtt.NewPublisher(client)
//	defer pub.Close()
//	drv.AddObserver(pub)
package mqtt
