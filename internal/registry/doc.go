// Package registry implements the Registry Core data model.
//
// A Contract aggregates named Registries. Each Registry is owned by the
// identity that created it and holds an ordered collection of named Devices.
// Every Device carries a description plus two ordered sequences of key/value
// Pairs: metadata and data.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                           Contract                            │
//	│   registries: [(name, Registry), ...]   name → index map      │
//	│                                                               │
//	│   ┌───────────────────────────────────────────────────────┐   │
//	│   │                       Registry                        │   │
//	│   │  name, owner_id, device_count, device_ids             │   │
//	│   │  devices: [(name, Device), ...]  name → index map     │   │
//	│   │                                                       │   │
//	│   │   ┌───────────────────────────────────────────────┐   │   │
//	│   │   │ Device: name, description, metadata, data     │   │   │
//	│   │   └───────────────────────────────────────────────┘   │   │
//	│   └───────────────────────────────────────────────────────┘   │
//	└───────────────────────────────────────────────────────────────┘
//
// # Operations
//
//   - NewRegistry / Contract.CreateRegistry: allocate an owned, empty registry
//   - Registry.AddDevice: append a uniquely named device
//   - Registry.SetDeviceMetadata, Registry.SetDeviceData: full replacement
//   - Contract.SetDeviceMetadataParam: owner-checked single pair append
//   - Contract.RegistryExists, Contract.IsOwner, Contract.DeviceExists: queries
//
// Metadata and data setters replace the whole sequence; the param operation
// appends one pair. The two behaviours are deliberately kept as separate
// operations and duplicate keys are preserved in both.
//
// # Atomicity
//
// Every operation validates all of its preconditions before touching state,
// so a failed call leaves the records exactly as they were. AddDevice updates
// device_count, device_ids and devices together.
//
// # Thread Safety
//
// Types in this package are not safe for concurrent use. The store package
// serialises mutations and publishes copies to readers.
package registry
