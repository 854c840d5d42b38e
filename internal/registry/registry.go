package registry

import "fmt"

// NewRegistry allocates an empty registry owned by caller.
//
// It fails with ErrNameTooLong when name exceeds MaxNameLength. No check
// against sibling registries is made here; Contract.Insert enforces
// per-contract uniqueness.
func NewRegistry(name string, caller Identity) (*Registry, error) {
	if err := ValidateRegistryName(name); err != nil {
		return nil, err
	}
	return &Registry{
		Name:        name,
		OwnerID:     caller,
		DeviceCount: 0,
		DeviceIDs:   []string{},
		Devices:     []NamedDevice{},
		index:       make(map[string]int),
	}, nil
}

// AddDevice appends a new device to the registry.
//
// id is the external handle of the device record and is appended to
// DeviceIDs. Fails with ErrDeviceExists when a device with the same name is
// already present; in that case nothing is modified. No ownership check is
// made; see AccessMode for the owner-checked variant.
func (r *Registry) AddDevice(id, name, description string, metadata, data []Pair) error {
	idx := r.lookup()
	if _, exists := idx[name]; exists {
		return ErrDeviceExists
	}

	dev := Device{
		Name:        name,
		Description: description,
		Metadata:    clonePairs(metadata),
		Data:        clonePairs(data),
	}

	r.DeviceCount++
	r.DeviceIDs = append(r.DeviceIDs, id)
	r.Devices = append(r.Devices, NamedDevice{Name: name, Device: dev})
	idx[name] = len(r.Devices) - 1
	return nil
}

// SetDeviceMetadata replaces the full metadata sequence of the named device.
// Fails with ErrDeviceNotFound when the device does not exist.
func (r *Registry) SetDeviceMetadata(name string, metadata []Pair) error {
	dev, ok := r.device(name)
	if !ok {
		return ErrDeviceNotFound
	}
	dev.Metadata = clonePairs(metadata)
	return nil
}

// SetDeviceData replaces the full data sequence of the named device.
// Fails with ErrDeviceNotFound when the device does not exist.
func (r *Registry) SetDeviceData(name string, data []Pair) error {
	dev, ok := r.device(name)
	if !ok {
		return ErrDeviceNotFound
	}
	dev.Data = clonePairs(data)
	return nil
}

// AppendDeviceMetadata appends a single pair to the named device's metadata.
// Callers normally reach this through Contract.SetDeviceMetadataParam, which
// checks ownership first.
func (r *Registry) AppendDeviceMetadata(name, key, value string) error {
	dev, ok := r.device(name)
	if !ok {
		return ErrDeviceNotFound
	}
	dev.Metadata = append(dev.Metadata, Pair{Key: key, Value: value})
	return nil
}

// HasDevice reports whether a device with the exact name exists.
func (r *Registry) HasDevice(name string) bool {
	_, ok := r.lookup()[name]
	return ok
}

// Device returns a copy of the named device.
func (r *Registry) Device(name string) (*Device, error) {
	dev, ok := r.device(name)
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return dev.DeepCopy(), nil
}

// DeviceID returns the external handle recorded for the named device.
func (r *Registry) DeviceID(name string) (string, error) {
	i, ok := r.lookup()[name]
	if !ok {
		return "", ErrDeviceNotFound
	}
	return r.DeviceIDs[i], nil
}

// IsOwnedBy reports whether caller is the registry owner.
func (r *Registry) IsOwnedBy(caller Identity) bool {
	return r.OwnerID == caller
}

// CheckInvariants verifies that the device count, handle list and device list
// agree and that device names are unique. Records loaded from storage are
// passed through this before use.
//
// On success the name index is rebuilt, after which read-only methods do
// not write to the registry and may run concurrently.
func (r *Registry) CheckInvariants() error {
	if err := ValidateRegistryName(r.Name); err != nil {
		return err
	}
	if r.DeviceCount != uint64(len(r.Devices)) || len(r.Devices) != len(r.DeviceIDs) {
		return &InvariantError{
			Registry: r.Name,
			Count:    r.DeviceCount,
			IDs:      len(r.DeviceIDs),
			Devices:  len(r.Devices),
		}
	}
	index := make(map[string]int, len(r.Devices))
	for i, nd := range r.Devices {
		if _, dup := index[nd.Name]; dup {
			return fmt.Errorf("%w: %q appears twice in %q", ErrDeviceExists, nd.Name, r.Name)
		}
		index[nd.Name] = i
	}
	r.index = index
	return nil
}

// device returns a pointer into the device slice for in-place mutation.
func (r *Registry) device(name string) (*Device, bool) {
	i, ok := r.lookup()[name]
	if !ok {
		return nil, false
	}
	return &r.Devices[i].Device, true
}

// lookup returns the name index, rebuilding it when the registry was
// constructed outside NewRegistry (decoded from JSON or loaded from storage).
func (r *Registry) lookup() map[string]int {
	if r.index == nil || len(r.index) != len(r.Devices) {
		r.index = make(map[string]int, len(r.Devices))
		for i, nd := range r.Devices {
			r.index[nd.Name] = i
		}
	}
	return r.index
}
