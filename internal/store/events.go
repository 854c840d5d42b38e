package store

import (
	"time"

	"github.com/nerrad567/registry-core/internal/audit"
	"github.com/nerrad567/registry-core/internal/registry"
)

// Action names an operation. Values double as audit actions and MQTT topic segments.
type Action string

const (
	ActionCreateRegistry   Action = "create_registry"
	ActionAddDevice        Action = "add_device"
	ActionSetMetadata      Action = "set_metadata"
	ActionSetData          Action = "set_data"
	ActionSetMetadataParam Action = "set_metadata_param"
)

// Event describes one completed operation, accepted or rejected.
type Event struct {
	Action   Action            `json:"action"`
	Registry string            `json:"registry"`
	Device   string            `json:"device,omitempty"`
	DeviceID string            `json:"device_id,omitempty"`
	Caller   registry.Identity `json:"caller"`
	Time     time.Time         `json:"time"`
	Duration time.Duration     `json:"duration"`

	// Err is nil for committed operations.
	Err error `json:"-"`

	// Snapshot is a copy of the committed registry; nil when Err is set.
	Snapshot *registry.Registry `json:"registry_state,omitempty"`
}

// Committed reports whether the operation changed state.
func (e Event) Committed() bool {
	return e.Err == nil
}

// Outcome is "ok", "rejected" for a failed precondition, or "error" for an
// infrastructure fault such as a failed save.
func (e Event) Outcome() string {
	switch {
	case e.Err == nil:
		return audit.OutcomeOK
	case IsRejection(e.Err):
		return audit.OutcomeRejected
	default:
		return audit.OutcomeError
	}
}

// Observer receives events after each operation. Implementations must be
// safe for concurrent use.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
