package registry

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Sizing constants inherited from the fixed-size record layout.
const (
	// MaxNameLength is the maximum registry name length in bytes.
	MaxNameLength = 64

	// DefaultDeviceCapacity is the number of devices a registry record was
	// historically sized for. The store enforces its configured capacity.
	DefaultDeviceCapacity = 100
)

// Identity is an authenticated principal. The registry package only compares
// identities; verifying them is the caller's job.
type Identity string

// Pair is a single key/value entry of device metadata or data.
//
// Pairs encode to JSON as a two-element array, ["key", "value"].
type Pair struct {
	Key   string
	Value string
}

// P is shorthand for constructing a Pair.
func P(key, value string) Pair {
	return Pair{Key: key, Value: value}
}

// MarshalJSON encodes the pair as ["key", "value"].
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Key, p.Value})
}

// UnmarshalJSON decodes a ["key", "value"] array.
func (p *Pair) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decoding pair: %w", err)
	}
	if len(raw) != 2 { //nolint:mnd // a pair is exactly key and value
		return fmt.Errorf("decoding pair: want 2 elements, got %d", len(raw))
	}
	p.Key, p.Value = raw[0], raw[1]
	return nil
}

// Device is the innermost record of the model.
type Device struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Metadata    []Pair `json:"metadata"`
	Data        []Pair `json:"data"`
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Metadata = clonePairs(d.Metadata)
	cpy.Data = clonePairs(d.Data)
	return &cpy
}

// NamedDevice is one entry of a registry's ordered device collection.
type NamedDevice struct {
	Name   string `json:"name"`
	Device Device `json:"device"`
}

// Registry is a named, owned collection of devices.
//
// DeviceCount, DeviceIDs and Devices always have the same length after a
// successful operation. Fields are exported for persistence; mutate them
// only through the methods of this package.
type Registry struct {
	Name        string        `json:"name"`
	OwnerID     Identity      `json:"owner_id"`
	DeviceCount uint64        `json:"device_count"`
	DeviceIDs   []string      `json:"device_ids"`
	Devices     []NamedDevice `json:"devices"`

	index map[string]int
}

// DeepCopy returns an independent copy of the registry.
func (r *Registry) DeepCopy() *Registry {
	if r == nil {
		return nil
	}
	cpy := &Registry{
		Name:        r.Name,
		OwnerID:     r.OwnerID,
		DeviceCount: r.DeviceCount,
		DeviceIDs:   slices.Clone(r.DeviceIDs),
	}
	if r.Devices != nil {
		cpy.Devices = make([]NamedDevice, len(r.Devices))
		for i, nd := range r.Devices {
			cpy.Devices[i] = NamedDevice{Name: nd.Name, Device: *nd.Device.DeepCopy()}
		}
	}
	// Built eagerly so reads on a copy never write; snapshots are shared
	// with concurrent observers.
	cpy.index = make(map[string]int, len(cpy.Devices))
	for i, nd := range cpy.Devices {
		cpy.index[nd.Name] = i
	}
	return cpy
}

// clonePairs copies a pair sequence, keeping nil as nil and empty as empty.
func clonePairs(in []Pair) []Pair {
	if in == nil {
		return nil
	}
	out := make([]Pair, len(in))
	copy(out, in)
	return out
}
