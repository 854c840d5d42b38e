package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/registry-core/internal/audit"
	"github.com/nerrad567/registry-core/internal/registry"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Store.
type Options struct {
	// AccessMode governs add-device and the metadata/data setters.
	AccessMode registry.AccessMode

	// MaxDevices caps devices per registry. 0 disables the cap.
	MaxDevices int

	// Audit receives one entry per operation. Optional.
	Audit *audit.Recorder
}

// DeviceSpec is the input to AddDevice.
type DeviceSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Metadata    []registry.Pair `json:"metadata"`
	Data        []registry.Pair `json:"data"`
}

// Stats summarises the contract.
type Stats struct {
	Registries  int               `json:"registries"`
	Devices     uint64            `json:"devices"`
	MaxDevices  int               `json:"max_devices"`
	AccessMode  string            `json:"access_mode"`
	PerRegistry map[string]uint64 `json:"per_registry"`
}

// Store serialises operations on one registry.Contract.
//
// All public methods are thread-safe. Values returned by read methods are
// deep copies; callers may modify them freely.
type Store struct {
	repo  Repository
	opts  Options
	audit *audit.Recorder

	mu       sync.RWMutex
	contract *registry.Contract

	obsMu     sync.RWMutex
	observers []Observer

	logger Logger
	newID  func() string // called with mu held
	now    func() time.Time
}

// New creates a Store over repo with an empty contract. Call Load to read
// persisted state.
func New(repo Repository, opts Options) *Store {
	if opts.AccessMode == "" {
		opts.AccessMode = registry.AccessTrusted
	}
	return &Store{
		repo:     repo,
		opts:     opts,
		audit:    opts.Audit,
		contract: registry.NewContract(),
		logger:   noopLogger{},
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Subscribe registers an observer for all subsequent events.
func (s *Store) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Load replaces the live contract with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	contract, err := s.repo.LoadContract(ctx)
	if err != nil {
		return fmt.Errorf("loading contract: %w", err)
	}
	var devices uint64
	for _, reg := range contract.Registries() {
		if err := reg.CheckInvariants(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		}
		devices += reg.DeviceCount
	}

	s.mu.Lock()
	s.contract = contract
	s.mu.Unlock()

	s.logger.Info("contract loaded", "registries", contract.Len(), "devices", devices)
	return nil
}

// op carries one operation through apply.
type op struct {
	action   Action
	caller   registry.Identity
	registry string
	device   string
	details  map[string]any

	// create is set for ActionCreateRegistry; mutate for everything else.
	create bool
	mutate func(scratch *registry.Contract, reg *registry.Registry) error
}

// apply runs o on a private copy of its registry, persists the copy and
// swaps it in. The live contract is untouched unless every step succeeds.
func (s *Store) apply(ctx context.Context, o op) (Event, error) {
	start := s.now()
	ev := Event{
		Action:   o.action,
		Registry: o.registry,
		Device:   o.device,
		Caller:   o.caller,
		Time:     start,
	}

	committed, err := s.commit(ctx, o)
	ev.Duration = s.now().Sub(start)
	if err != nil {
		ev.Err = err
	} else {
		ev.Snapshot = committed
		if o.device != "" {
			ev.DeviceID, _ = committed.DeviceID(o.device) //nolint:errcheck // device exists after a committed device op
		}
	}

	s.record(ctx, o, ev)
	s.notify(ev)
	return ev, err
}

func (s *Store) commit(ctx context.Context, o op) (*registry.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		work     *registry.Registry
		position int
	)
	if o.create {
		if s.contract.RegistryExists(o.registry) {
			return nil, registry.ErrRegistryExists
		}
		reg, err := registry.NewRegistry(o.registry, o.caller)
		if err != nil {
			return nil, err
		}
		work, position = reg, s.contract.Len()
	} else {
		// The scratch contract holds only the copy, so contract-scoped
		// operations resolve against the same record they mutate.
		scratch := registry.NewContract()
		live, err := s.contract.Registry(o.registry)
		if err == nil {
			work = live.DeepCopy()
			if err := scratch.Insert(work); err != nil {
				return nil, err
			}
		}
		if err := o.mutate(scratch, work); err != nil {
			return nil, err
		}
		if work == nil {
			return nil, registry.ErrRegistryNotFound
		}
	}

	if err := work.CheckInvariants(); err != nil {
		s.logger.Error("mutation broke registry invariants", "registry", o.registry, "action", o.action, "error", err)
		return nil, err
	}

	if err := s.repo.SaveRegistry(ctx, work, position); err != nil {
		return nil, fmt.Errorf("persisting registry %q: %w", o.registry, err)
	}

	if o.create {
		if err := s.contract.Insert(work); err != nil {
			return nil, err
		}
	} else if err := s.contract.Replace(work); err != nil {
		return nil, err
	}
	return work.DeepCopy(), nil
}

func (s *Store) record(ctx context.Context, o op, ev Event) {
	entityType, entityID := "registry", o.registry
	if o.device != "" {
		entityType, entityID = "device", o.registry+"/"+o.device
	}

	details := make(map[string]any, len(o.details)+1)
	for k, v := range o.details {
		details[k] = v
	}
	if ev.Err != nil {
		details["error"] = ev.Err.Error()
		s.logger.Debug("operation rejected", "action", o.action, "registry", o.registry, "device", o.device, "caller", o.caller, "error", ev.Err)
	} else {
		s.logger.Info("operation committed", "action", o.action, "registry", o.registry, "device", o.device, "caller", o.caller)
	}
	if ev.DeviceID != "" {
		details["device_id"] = ev.DeviceID
	}

	s.audit.Record(&audit.AuditLog{
		Action:     string(o.action),
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     string(o.caller),
		Source:     audit.SourceFrom(ctx),
		Outcome:    ev.Outcome(),
		Details:    details,
		CreatedAt:  ev.Time.UTC(),
	})
}

func (s *Store) notify(ev Event) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.OnEvent(ev)
	}
}

// CreateRegistry creates a registry named name owned by caller.
func (s *Store) CreateRegistry(ctx context.Context, caller registry.Identity, name string) (*registry.Registry, error) {
	ev, err := s.apply(ctx, op{
		action:   ActionCreateRegistry,
		caller:   caller,
		registry: name,
		create:   true,
	})
	if err != nil {
		return nil, err
	}
	return ev.Snapshot, nil
}

// AddDevice adds a device to the named registry and returns its new handle.
func (s *Store) AddDevice(ctx context.Context, caller registry.Identity, registryName string, spec DeviceSpec) (string, error) {
	ev, err := s.apply(ctx, op{
		action:   ActionAddDevice,
		caller:   caller,
		registry: registryName,
		device:   spec.Name,
		details:  map[string]any{"description": spec.Description},
		mutate: func(_ *registry.Contract, reg *registry.Registry) error {
			if reg == nil {
				return registry.ErrRegistryNotFound
			}
			if err := s.opts.AccessMode.Authorize(reg, caller); err != nil {
				return err
			}
			if s.opts.MaxDevices > 0 && !reg.HasDevice(spec.Name) && len(reg.Devices) >= s.opts.MaxDevices {
				return fmt.Errorf("%w: %d devices", ErrCapacityExceeded, s.opts.MaxDevices)
			}
			return reg.AddDevice(s.newID(), spec.Name, spec.Description, spec.Metadata, spec.Data)
		},
	})
	if err != nil {
		return "", err
	}
	return ev.DeviceID, nil
}

// SetDeviceMetadata replaces a device's metadata.
func (s *Store) SetDeviceMetadata(ctx context.Context, caller registry.Identity, registryName, deviceName string, metadata []registry.Pair) error {
	_, err := s.apply(ctx, op{
		action:   ActionSetMetadata,
		caller:   caller,
		registry: registryName,
		device:   deviceName,
		details:  map[string]any{"pairs": len(metadata)},
		mutate: func(_ *registry.Contract, reg *registry.Registry) error {
			if reg == nil {
				return registry.ErrRegistryNotFound
			}
			if err := s.opts.AccessMode.Authorize(reg, caller); err != nil {
				return err
			}
			return reg.SetDeviceMetadata(deviceName, metadata)
		},
	})
	return err
}

// SetDeviceData replaces a device's data.
func (s *Store) SetDeviceData(ctx context.Context, caller registry.Identity, registryName, deviceName string, data []registry.Pair) error {
	_, err := s.apply(ctx, op{
		action:   ActionSetData,
		caller:   caller,
		registry: registryName,
		device:   deviceName,
		details:  map[string]any{"pairs": len(data)},
		mutate: func(_ *registry.Contract, reg *registry.Registry) error {
			if reg == nil {
				return registry.ErrRegistryNotFound
			}
			if err := s.opts.AccessMode.Authorize(reg, caller); err != nil {
				return err
			}
			return reg.SetDeviceData(deviceName, data)
		},
	})
	return err
}

// SetDeviceMetadataParam appends (param, value) to a device's metadata.
// Only the registry owner may do this, in every access mode.
func (s *Store) SetDeviceMetadataParam(ctx context.Context, caller registry.Identity, registryName, deviceName, param, value string) error {
	_, err := s.apply(ctx, op{
		action:   ActionSetMetadataParam,
		caller:   caller,
		registry: registryName,
		device:   deviceName,
		details:  map[string]any{"param": param},
		mutate: func(scratch *registry.Contract, _ *registry.Registry) error {
			return scratch.SetDeviceMetadataParam(registryName, deviceName, param, value, caller)
		},
	})
	return err
}

// Registries returns copies of every registry in creation order.
func (s *Store) Registries() []*registry.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := s.contract.Registries()
	out := make([]*registry.Registry, len(regs))
	for i, reg := range regs {
		out[i] = reg.DeepCopy()
	}
	return out
}

// Registry returns a copy of the named registry.
func (s *Store) Registry(name string) (*registry.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, err := s.contract.Registry(name)
	if err != nil {
		return nil, err
	}
	return reg.DeepCopy(), nil
}

// Device returns a copy of one device and its handle.
func (s *Store) Device(registryName, deviceName string) (*registry.Device, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, err := s.contract.Registry(registryName)
	if err != nil {
		return nil, "", err
	}
	dev, err := reg.Device(deviceName)
	if err != nil {
		return nil, "", err
	}
	id, err := reg.DeviceID(deviceName)
	if err != nil {
		return nil, "", err
	}
	return dev, id, nil
}

// RegistryExists reports whether a registry with the exact name exists.
func (s *Store) RegistryExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contract.RegistryExists(name)
}

// IsOwner reports whether caller owns the named registry.
func (s *Store) IsOwner(name string, caller registry.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contract.IsOwner(name, caller)
}

// DeviceExists reports whether the named registry holds the named device.
// Returns ErrRegistryNotFound when the registry itself is missing.
func (s *Store) DeviceExists(registryName, deviceName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, err := s.contract.Registry(registryName)
	if err != nil {
		return false, err
	}
	return s.contract.DeviceExists(reg, deviceName), nil
}

// Stats summarises the live contract.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Registries:  s.contract.Len(),
		MaxDevices:  s.opts.MaxDevices,
		AccessMode:  string(s.opts.AccessMode),
		PerRegistry: make(map[string]uint64, s.contract.Len()),
	}
	for _, reg := range s.contract.Registries() {
		st.Devices += reg.DeviceCount
		st.PerRegistry[reg.Name] = reg.DeviceCount
	}
	return st
}

// IsRejection reports whether err is a precondition failure from the
// registry model or the store, as opposed to an infrastructure fault.
func IsRejection(err error) bool {
	for _, target := range []error{
		registry.ErrRegistryNotFound,
		registry.ErrRegistryExists,
		registry.ErrDeviceNotFound,
		registry.ErrDeviceExists,
		registry.ErrUnauthorizedAccess,
		registry.ErrNameTooLong,
		ErrCapacityExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
