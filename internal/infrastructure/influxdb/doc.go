// Package influxdb records registry telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing, and health monitoring.
//
// # Measurements
//
//	registry_ops      one point per store operation
//	                  tags: action, registry, outcome   fields: duration_ms
//	registry_devices  device-count gauge per registry
//	                  tags: registry                    fields: devices
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	st.Subscribe(client)
//	go client.RunGauges(ctx, time.Minute, st.Stats)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched (batch_size, flush_interval); async
// write errors are delivered to the SetOnError callback.
package influxdb
