package mqtt

import (
	"fmt"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet remembers live subscriptions so they can be replayed
// after a reconnect; the session is clean, so the broker forgets them.
type subscriptionSet struct {
	mu      sync.RWMutex
	byTopic map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	s.byTopic[sub.topic] = sub
	s.mu.Unlock()
}

func (s *subscriptionSet) remove(topic string) {
	s.mu.Lock()
	delete(s.byTopic, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byTopic[topic]
	return ok
}

func (s *subscriptionSet) all() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription, 0, len(s.byTopic))
	for _, sub := range s.byTopic {
		out = append(out, sub)
	}
	return out
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards (see Topics.AllIngestData). Handlers run on paho's goroutines
// and should not block.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout); err != nil {
		c.subs.remove(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe drops the subscription for exactly topic. Messages already
// in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.remove(topic)
	if err := await(c.paho.Unsubscribe(topic), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// SubscriptionCount returns the number of live subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subs.mu.RLock()
	defer c.subs.mu.RUnlock()
	return len(c.subs.byTopic)
}

// HasSubscription reports whether topic, compared literally, is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}
