package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/registry-core/internal/store"
)

// Measurement names.
const (
	MeasurementOps     = "registry_ops"
	MeasurementDevices = "registry_devices"
)

// OnEvent writes one registry_ops point per operation, accepted or not.
// Non-blocking; a no-op when disconnected.
func (c *Client) OnEvent(ev store.Event) {
	c.write(operationPoint(ev))
}

// WriteDeviceCounts writes the current device count of every registry.
func (c *Client) WriteDeviceCounts(stats store.Stats) {
	c.write(deviceCountPoints(stats, time.Now())...)
}

// RunGauges calls WriteDeviceCounts every interval until ctx is cancelled.
func (c *Client) RunGauges(ctx context.Context, interval time.Duration, stats func() store.Stats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.WriteDeviceCounts(stats())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.WriteDeviceCounts(stats())
		}
	}
}

func operationPoint(ev store.Event) *write.Point {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementOps,
		map[string]string{
			"action":   string(ev.Action),
			"registry": ev.Registry,
			"outcome":  ev.Outcome(),
		},
		map[string]interface{}{
			"duration_ms": float64(ev.Duration.Microseconds()) / 1000, //nolint:mnd // µs to ms
		},
		at,
	)
}

func deviceCountPoints(stats store.Stats, at time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(stats.PerRegistry))
	for name, count := range stats.PerRegistry {
		points = append(points, write.NewPoint(
			MeasurementDevices,
			map[string]string{"registry": name},
			map[string]interface{}{"devices": count},
			at,
		))
	}
	return points
}
