package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/registry-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointSink is the part of api.WriteAPI the client writes through.
type pointSink interface {
	WritePoint(p *write.Point)
	Flush()
}

// Client writes registry telemetry to InfluxDB v2.
//
// Writes are batched and non-blocking; failures surface through the
// SetOnError callback. Client implements store.Observer so it can be
// subscribed to the registry store directly. Every method is a no-op on
// a client that is not connected.
type Client struct {
	client influxdb2.Client
	sink   pointSink

	connected atomic.Bool

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server at cfg.URL and opens a batching write API on
// cfg.Org/cfg.Bucket. It returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg)).
		SetFlushInterval(flushIntervalMillis(cfg))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(writeAPI)
	c.client = client
	go c.forwardErrors(writeAPI.Errors())
	return c, nil
}

// newClient returns a connected client writing to sink.
func newClient(sink pointSink) *Client {
	c := &Client{sink: sink}
	c.connected.Store(true)
	return c
}

func batchSize(cfg config.InfluxDBConfig) uint {
	if cfg.BatchSize <= 0 {
		return defaultBatchSize
	}
	return uint(cfg.BatchSize) // #nosec G115 -- positive
}

// flushIntervalMillis converts flush_interval (seconds) to the
// milliseconds the client options take.
func flushIntervalMillis(cfg config.InfluxDBConfig) uint {
	interval := time.Duration(cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return uint(interval.Milliseconds()) // #nosec G115 -- positive
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// Close flushes buffered points and closes the connection.
func (c *Client) Close() error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.sink.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Flush blocks until buffered points are written.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.sink.Flush()
}

func (c *Client) write(points ...*write.Point) {
	if !c.IsConnected() {
		return
	}
	for _, p := range points {
		c.sink.WritePoint(p)
	}
}
