package registry

import "fmt"

// AccessMode selects how writes on a directly resolved registry are
// authorised. The contract-scoped param operation is owner-checked in every
// mode.
type AccessMode string

const (
	// AccessTrusted performs no ownership check on add-device and the
	// metadata/data setters. Access control is left to whoever resolved the
	// registry handle.
	AccessTrusted AccessMode = "trusted"

	// AccessOwnerOnly requires the caller to own the registry for every write.
	AccessOwnerOnly AccessMode = "owner_only"
)

// ParseAccessMode converts a configuration string to an AccessMode.
// An empty string selects AccessTrusted.
func ParseAccessMode(s string) (AccessMode, error) {
	switch AccessMode(s) {
	case "", AccessTrusted:
		return AccessTrusted, nil
	case AccessOwnerOnly:
		return AccessOwnerOnly, nil
	default:
		return "", fmt.Errorf("unknown access mode %q", s)
	}
}

// Authorize checks whether caller may write to reg under this mode.
func (m AccessMode) Authorize(reg *Registry, caller Identity) error {
	if m == AccessOwnerOnly && !reg.IsOwnedBy(caller) {
		return ErrUnauthorizedAccess
	}
	return nil
}
