package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/registry-core/internal/store"
)

// DefaultPublishQueue is the publisher's queue length when none is given.
const DefaultPublishQueue = 256

// eventPublisher matches Client.Publish.
type eventPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher relays committed store events to the broker.
//
// It implements store.Observer. OnEvent only enqueues; a single goroutine
// started by Start does the publishing, so a slow broker never stalls a
// store caller. Events are dropped with a warning when the queue is full.
type Publisher struct {
	client eventPublisher
	qos    byte
	ch     chan store.Event
	logger Logger

	wg   sync.WaitGroup
	once sync.Once
}

// eventMessage is the payload on registry/event/{action}.
type eventMessage struct {
	Action     store.Action `json:"action"`
	Registry   string       `json:"registry"`
	Device     string       `json:"device,omitempty"`
	DeviceID   string       `json:"device_id,omitempty"`
	Caller     string       `json:"caller"`
	Timestamp  string       `json:"timestamp"`
	DurationMS float64      `json:"duration_ms"`
}

// NewPublisher creates a Publisher. queueSize <= 0 selects DefaultPublishQueue.
func NewPublisher(client eventPublisher, qos byte, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultPublishQueue
	}
	return &Publisher{
		client: client,
		qos:    qos,
		ch:     make(chan store.Event, queueSize),
	}
}

// SetLogger sets a logger for dropped events and publish failures.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// OnEvent enqueues committed events. Rejected operations are not published.
func (p *Publisher) OnEvent(ev store.Event) {
	if !ev.Committed() {
		return
	}
	select {
	case p.ch <- ev:
	default:
		if p.logger != nil {
			p.logger.Warn("MQTT publish queue full, dropping event",
				"action", ev.Action,
				"registry", ev.Registry,
			)
		}
	}
}

// Start launches the publishing goroutine. It drains the queue and exits
// once ctx is cancelled. Call Wait to block until it has finished.
func (p *Publisher) Start(ctx context.Context) {
	p.once.Do(func() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case ev := <-p.ch:
					p.publish(ev)
				case <-ctx.Done():
					for {
						select {
						case ev := <-p.ch:
							p.publish(ev)
						default:
							return
						}
					}
				}
			}
		}()
	})
}

// Wait blocks until the publishing goroutine has exited.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

func (p *Publisher) publish(ev store.Event) {
	topics := Topics{}

	msg, err := json.Marshal(eventMessage{
		Action:     ev.Action,
		Registry:   ev.Registry,
		Device:     ev.Device,
		DeviceID:   ev.DeviceID,
		Caller:     string(ev.Caller),
		Timestamp:  ev.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS: float64(ev.Duration.Microseconds()) / 1000, //nolint:mnd // µs to ms
	})
	if err == nil {
		err = p.client.Publish(topics.Event(ev.Action), msg, p.qos, false)
	}
	if err != nil {
		p.warn("MQTT event publish failed", ev, err)
	}

	if ev.Snapshot == nil {
		return
	}
	state, err := json.Marshal(ev.Snapshot)
	if err == nil {
		err = p.client.Publish(topics.State(ev.Registry), state, p.qos, true)
	}
	if err != nil {
		p.warn("MQTT state publish failed", ev, err)
	}
}

func (p *Publisher) warn(msg string, ev store.Event, err error) {
	if p.logger != nil {
		p.logger.Warn(msg, "action", ev.Action, "registry", ev.Registry, "error", err)
	}
}
