// Package store hosts the single live registry.Contract of a running service.
//
// The registry package validates and mutates records but is not safe for
// concurrent use and knows nothing about disks or identities. Store adds:
//
//   - Serialisation: one writer at a time under a mutex, readers in parallel
//   - Copy-on-write: each mutation runs on a private copy of the target
//     registry, which is persisted and only then swapped into the contract
//   - Persistence: a Repository (SQLite in production) loaded at start-up
//   - Sizing: a per-registry device cap (ErrCapacityExceeded)
//   - Device handles: a fresh UUID per added device
//   - Audit and events: every operation, accepted or rejected, is recorded
//     and delivered to the registered Observers
//
// # Atomicity
//
// A failed precondition or a failed save leaves the live contract exactly as
// it was. Readers never see a registry whose device count, handle list and
// device list disagree.
//
// # Event ordering
//
// Observers are called after the write lock is released, so events for
// different operations may arrive out of commit order. Event.Snapshot carries
// the committed registry, including its device count.
package store
