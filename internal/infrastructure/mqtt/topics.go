package mqtt

import (
	"net/url"
	"strings"

	"github.com/nerrad567/registry-core/internal/store"
)

// TopicPrefix is the root of every topic this service uses.
const TopicPrefix = "registry"

// Topics provides builders for registry MQTT topics.
//
// Registry and device names are free-form, so each name segment is
// percent-encoded: "/", "+" and "#" never appear raw in a topic level.
//
//	topics := mqtt.Topics{}
//	topics.State("Bodega 1")
//	// Returns: "registry/state/Bodega%201"
type Topics struct{}

// Event returns the topic for committed operations of one kind.
//
// Example: registry/event/add_device
func (Topics) Event(action store.Action) string {
	return TopicPrefix + "/event/" + string(action)
}

// AllEvents returns a wildcard matching every event topic.
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+"
}

// State returns the retained snapshot topic for a registry.
//
// Example: registry/state/R
func (Topics) State(registryName string) string {
	return TopicPrefix + "/state/" + EscapeSegment(registryName)
}

// SystemStatus returns the topic for service online/offline status (LWT).
//
// Example: registry/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// IngestData returns the topic devices publish their data on.
//
// Example: registry/ingest/R/D1/data
func (Topics) IngestData(registryName, deviceName string) string {
	return TopicPrefix + "/ingest/" + EscapeSegment(registryName) + "/" + EscapeSegment(deviceName) + "/data"
}

// AllIngestData returns a wildcard matching every ingest topic.
func (Topics) AllIngestData() string {
	return TopicPrefix + "/ingest/+/+/data"
}

// ParseIngestData extracts the registry and device names from an ingest topic.
func ParseIngestData(topic string) (registryName, deviceName string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix || parts[1] != "ingest" || parts[4] != "data" { //nolint:mnd // registry/ingest/{r}/{d}/data
		return "", "", ErrInvalidTopic
	}
	if registryName, err = UnescapeSegment(parts[2]); err != nil {
		return "", "", err
	}
	if deviceName, err = UnescapeSegment(parts[3]); err != nil {
		return "", "", err
	}
	return registryName, deviceName, nil
}

// EscapeSegment encodes a name for use as a single topic level.
func EscapeSegment(name string) string {
	return strings.NewReplacer("+", "%2B", "#", "%23").Replace(url.PathEscape(name))
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(segment string) (string, error) {
	name, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrInvalidTopic
	}
	return name, nil
}
