package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/registry-core/internal/infrastructure/config"
	"github.com/nerrad567/registry-core/internal/store"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "registry-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is running at 127.0.0.1:1883.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg)
	if err != nil {
		t.Skipf("no MQTT broker available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t, "registry-test-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t, "registry-test-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.Publish("registry/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Validation Tests (no broker needed)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"single-level wildcard", "registry/state/+", []byte("x"), 1, ErrInvalidTopic},
		{"multi-level wildcard", "registry/#", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "registry/test", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "registry/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "registry/test", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subs: subscriptionSet{byTopic: make(map[string]subscription)}}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "registry/#", 3, noop, ErrInvalidQoS},
		{"nil handler", "registry/#", 1, nil, ErrSubscribeFailed},
		{"not connected", "registry/#", 1, noop, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("registryd", statusOffline, reasonShutdown), &msg); err != nil {
		t.Fatalf("status payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "registryd" || msg.Reason != "graceful_shutdown" {
		t.Errorf("status = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", msg.Timestamp, err)
	}

	online := string(statusPayload("registryd", statusOnline, ""))
	if strings.Contains(online, "reason") {
		t.Errorf("online payload %s should omit reason", online)
	}
}

// =============================================================================
// Broker Round Trips
// =============================================================================

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pubClient := connectOrSkip(t, "registry-test-pub")
	subClient := connectOrSkip(t, "registry-test-sub")

	topic := Topics{}.Event(store.ActionAddDevice)
	want := `{"action":"add_device"}`
	received := make(chan string, 1)

	err := subClient.Subscribe(Topics{}.AllEvents(), 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !subClient.HasSubscription(Topics{}.AllEvents()) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish(topic, []byte(want), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Errorf("received payload = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}

	if err := subClient.Unsubscribe(Topics{}.AllEvents()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if subClient.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", subClient.SubscriptionCount())
	}
}

func TestPublishRetained(t *testing.T) {
	client := connectOrSkip(t, "registry-test-retained")

	if err := client.PublishRetained(Topics{}.State("R"), []byte(`{"name":"R"}`)); err != nil {
		t.Errorf("PublishRetained() error = %v", err)
	}
}
