package registry

// NamedRegistry is one entry of a contract's ordered registry collection.
type NamedRegistry struct {
	Name     string    `json:"name"`
	Registry *Registry `json:"registry"`
}

// Contract is the top-level aggregate owning every registry by name.
//
// A Contract is created once, empty, by its host and then only grows.
type Contract struct {
	registries []NamedRegistry
	index      map[string]int
}

// NewContract creates an empty contract.
func NewContract() *Contract {
	return &Contract{index: make(map[string]int)}
}

// CreateRegistry allocates a registry owned by caller and inserts it.
//
// Fails with ErrNameTooLong or ErrRegistryExists without modifying the
// contract. The returned registry is owned by the contract.
func (c *Contract) CreateRegistry(name string, caller Identity) (*Registry, error) {
	reg, err := NewRegistry(name, caller)
	if err != nil {
		return nil, err
	}
	if err := c.Insert(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Insert adds an existing registry record to the contract.
// Fails with ErrRegistryExists when the name is taken.
func (c *Contract) Insert(reg *Registry) error {
	if c.RegistryExists(reg.Name) {
		return ErrRegistryExists
	}
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.registries = append(c.registries, NamedRegistry{Name: reg.Name, Registry: reg})
	c.index[reg.Name] = len(c.registries) - 1
	return nil
}

// Registry resolves a registry by exact name.
func (c *Contract) Registry(name string) (*Registry, error) {
	i, ok := c.index[name]
	if !ok {
		return nil, ErrRegistryNotFound
	}
	return c.registries[i].Registry, nil
}

// Registries returns the registries in insertion order. The slice is a copy;
// the records are shared.
func (c *Contract) Registries() []*Registry {
	out := make([]*Registry, len(c.registries))
	for i, nr := range c.registries {
		out[i] = nr.Registry
	}
	return out
}

// Len returns the number of registries.
func (c *Contract) Len() int {
	return len(c.registries)
}

// RegistryExists reports whether a registry with the exact name exists.
func (c *Contract) RegistryExists(name string) bool {
	_, ok := c.index[name]
	return ok
}

// IsOwner reports whether caller owns the named registry. A missing registry
// yields false rather than an error.
func (c *Contract) IsOwner(name string, caller Identity) bool {
	reg, err := c.Registry(name)
	if err != nil {
		return false
	}
	return reg.IsOwnedBy(caller)
}

// DeviceExists reports whether reg holds a device with the exact name.
func (c *Contract) DeviceExists(reg *Registry, name string) bool {
	return reg.HasDevice(name)
}

// SetDeviceMetadataParam appends (param, value) to a device's metadata.
//
// This is the owner-checked path: it fails with ErrRegistryNotFound,
// ErrUnauthorizedAccess or ErrDeviceNotFound, in that order, and modifies
// nothing on failure. Repeated calls accumulate duplicate keys.
func (c *Contract) SetDeviceMetadataParam(registryName, deviceName, param, value string, caller Identity) error {
	reg, err := c.Registry(registryName)
	if err != nil {
		return err
	}
	if !reg.IsOwnedBy(caller) {
		return ErrUnauthorizedAccess
	}
	return reg.AppendDeviceMetadata(deviceName, param, value)
}

// DeepCopy returns an independent copy of the contract and all its records.
func (c *Contract) DeepCopy() *Contract {
	cpy := &Contract{
		registries: make([]NamedRegistry, len(c.registries)),
		index:      make(map[string]int, len(c.index)),
	}
	for i, nr := range c.registries {
		cpy.registries[i] = NamedRegistry{Name: nr.Name, Registry: nr.Registry.DeepCopy()}
		cpy.index[nr.Name] = i
	}
	return cpy
}

// Replace swaps the stored record for reg.Name with reg, keeping its position.
// The store uses this to publish a registry that was modified on a copy.
func (c *Contract) Replace(reg *Registry) error {
	i, ok := c.index[reg.Name]
	if !ok {
		return ErrRegistryNotFound
	}
	c.registries[i].Registry = reg
	return nil
}
