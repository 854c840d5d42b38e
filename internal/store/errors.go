package store

import "errors"

var (
	// ErrCapacityExceeded is returned when adding a device to a registry
	// that already holds the configured maximum.
	ErrCapacityExceeded = errors.New("store: registry capacity exceeded")

	// ErrCorruptRecord is returned by Load when a persisted registry breaks
	// its own invariants.
	ErrCorruptRecord = errors.New("store: corrupt registry record")
)
