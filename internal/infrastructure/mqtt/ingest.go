package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/registry-core/internal/audit"
	"github.com/nerrad567/registry-core/internal/registry"
)

// SourceMQTT tags audit entries for writes that arrived over MQTT.
const SourceMQTT = "mqtt"

// subscriber matches the subscription half of Client.
type subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// DataSetter is the store operation the ingestor drives.
type DataSetter interface {
	SetDeviceData(ctx context.Context, caller registry.Identity, registryName, deviceName string, data []registry.Pair) error
}

// Ingestor applies device data published on registry/ingest/{registry}/{device}/data.
//
// Each message replaces the device's data with the decoded [[key, value], ...]
// payload. Writes are made as a fixed identity and go through the store, so
// access mode, persistence and auditing all apply.
type Ingestor struct {
	client   subscriber
	store    DataSetter
	identity registry.Identity
	qos      byte
}

// NewIngestor creates an Ingestor writing as identity.
func NewIngestor(client subscriber, st DataSetter, identity registry.Identity, qos byte) *Ingestor {
	return &Ingestor{
		client:   client,
		store:    st,
		identity: identity,
		qos:      qos,
	}
}

// Start subscribes to all ingest topics.
func (i *Ingestor) Start() error {
	if err := i.client.Subscribe(Topics{}.AllIngestData(), i.qos, i.handle); err != nil {
		return fmt.Errorf("subscribing to ingest topics: %w", err)
	}
	return nil
}

// Stop unsubscribes from ingest topics.
func (i *Ingestor) Stop() error {
	return i.client.Unsubscribe(Topics{}.AllIngestData())
}

// handle is the MessageHandler for ingest topics. Errors are returned to the
// client wrapper, which logs them.
func (i *Ingestor) handle(topic string, payload []byte) error {
	registryName, deviceName, err := ParseIngestData(topic)
	if err != nil {
		return fmt.Errorf("%w: %s", err, topic)
	}

	var data []registry.Pair
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	ctx := audit.WithSource(context.Background(), SourceMQTT)
	if err := i.store.SetDeviceData(ctx, i.identity, registryName, deviceName, data); err != nil {
		return fmt.Errorf("ingest %s/%s: %w", registryName, deviceName, err)
	}
	return nil
}
