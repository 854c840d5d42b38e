// Package mqtt connects the registry service to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing committed registry operations and retained snapshots
//   - Ingesting device data pushed by devices themselves
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	registry/event/{action}                 one message per committed operation
//	registry/state/{registry}               retained registry snapshot
//	registry/ingest/{registry}/{device}/data  device data in, as [[key, value], ...]
//	registry/system/status                  retained online/offline status
//
// Name segments are percent-encoded; see EscapeSegment.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Ingest writes are attributed to a single configured identity, so
//     broker ACLs decide which devices may publish to which topics
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	pub := mqtt.NewPublisher(client, byte(cfg.MQTT.QoS), 0)
//	pub.Start(ctx)
//	st.Subscribe(pub)
package mqtt
