package registry

import "fmt"

// InvariantError reports a registry whose count, handles and devices disagree.
type InvariantError struct {
	Registry string
	Count    uint64
	IDs      int
	Devices  int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("registry %q: device_count=%d device_ids=%d devices=%d",
		e.Registry, e.Count, e.IDs, e.Devices)
}

// ValidateRegistryName checks the registry name length bound.
//
// The bound is measured in bytes, matching the fixed-size record layout.
func ValidateRegistryName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrNameTooLong, len(name), MaxNameLength)
	}
	return nil
}
