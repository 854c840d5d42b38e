package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, registry.ErrUnauthorizedAccess) {
//	    // caller is not the registry owner
//	}
var (
	// ErrRegistryNotFound is returned when no registry has the referenced name.
	ErrRegistryNotFound = errors.New("registry: not found")

	// ErrRegistryExists is returned when inserting a registry whose name is
	// already present in the contract.
	ErrRegistryExists = errors.New("registry: already exists")

	// ErrDeviceNotFound is returned when no device in the registry has the
	// referenced name.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrDeviceExists is returned when adding a device whose name is already
	// present in the registry.
	ErrDeviceExists = errors.New("registry: device already exists")

	// ErrUnauthorizedAccess is returned when the caller identity does not
	// match the registry owner.
	ErrUnauthorizedAccess = errors.New("registry: unauthorized access")

	// ErrNameTooLong is returned when a registry name exceeds MaxNameLength.
	ErrNameTooLong = errors.New("registry: name too long")
)
