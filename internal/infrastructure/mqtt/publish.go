package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize caps a single message. Registry snapshots are the
// largest payloads and stay well below it at the configured capacity.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic. Topics must be concrete: + and # are
// only valid in subscriptions, and registry or device names that contain
// them are escaped by Topics.
//
// Events are published non-retained; registry snapshots and the status
// topic are retained so late subscribers see current state.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
