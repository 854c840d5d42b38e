package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/registry-core/internal/registry"
)

// Repository persists registries.
//
// SaveRegistry writes the full registry record atomically. position is the
// registry's index in the contract and is only used the first time the
// registry is saved.
type Repository interface {
	LoadContract(ctx context.Context) (*registry.Contract, error)
	SaveRegistry(ctx context.Context, reg *registry.Registry, position int) error
}

// SQLiteRepository implements Repository using the registries and devices tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite registry repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadContract reads every registry and its devices in insertion order.
func (r *SQLiteRepository) LoadContract(ctx context.Context) (*registry.Contract, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, owner_id, device_count FROM registries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying registries: %w", err)
	}

	var regs []*registry.Registry
	for rows.Next() {
		reg := &registry.Registry{DeviceIDs: []string{}, Devices: []registry.NamedDevice{}}
		var owner string
		if err := rows.Scan(&reg.Name, &owner, &reg.DeviceCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning registry: %w", err)
		}
		reg.OwnerID = registry.Identity(owner)
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating registries: %w", err)
	}
	rows.Close()

	contract := registry.NewContract()
	for _, reg := range regs {
		if err := r.loadDevices(ctx, reg); err != nil {
			return nil, err
		}
		if err := contract.Insert(reg); err != nil {
			return nil, fmt.Errorf("loading registry %q: %w", reg.Name, err)
		}
	}
	return contract, nil
}

func (r *SQLiteRepository) loadDevices(ctx context.Context, reg *registry.Registry) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, device_id, description, metadata, data
		 FROM devices WHERE registry_name = ? ORDER BY position`, reg.Name)
	if err != nil {
		return fmt.Errorf("querying devices of %q: %w", reg.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dev            registry.Device
			id             string
			metadata, data string
		)
		if err := rows.Scan(&dev.Name, &id, &dev.Description, &metadata, &data); err != nil {
			return fmt.Errorf("scanning device: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &dev.Metadata); err != nil {
			return fmt.Errorf("decoding metadata of %s/%s: %w", reg.Name, dev.Name, err)
		}
		if err := json.Unmarshal([]byte(data), &dev.Data); err != nil {
			return fmt.Errorf("decoding data of %s/%s: %w", reg.Name, dev.Name, err)
		}
		reg.DeviceIDs = append(reg.DeviceIDs, id)
		reg.Devices = append(reg.Devices, registry.NamedDevice{Name: dev.Name, Device: dev})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating devices: %w", err)
	}
	return nil
}

// SaveRegistry upserts the registry row and every device row in one transaction.
// Devices are never deleted, so rows are only inserted or updated.
func (r *SQLiteRepository) SaveRegistry(ctx context.Context, reg *registry.Registry, position int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO registries (name, position, owner_id, device_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET device_count = excluded.device_count, updated_at = excluded.updated_at`,
		reg.Name, position, string(reg.OwnerID), reg.DeviceCount, now, now,
	); err != nil {
		return fmt.Errorf("saving registry %q: %w", reg.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO devices (registry_name, name, position, device_id, description, metadata, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(registry_name, name) DO UPDATE SET
		     description = excluded.description,
		     metadata = excluded.metadata,
		     data = excluded.data`)
	if err != nil {
		return fmt.Errorf("preparing device upsert: %w", err)
	}
	defer stmt.Close()

	for i, nd := range reg.Devices {
		metadata, err := marshalPairs(nd.Device.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata of %s/%s: %w", reg.Name, nd.Name, err)
		}
		data, err := marshalPairs(nd.Device.Data)
		if err != nil {
			return fmt.Errorf("encoding data of %s/%s: %w", reg.Name, nd.Name, err)
		}
		if _, err := stmt.ExecContext(ctx,
			reg.Name, nd.Name, i, reg.DeviceIDs[i], nd.Device.Description, metadata, data,
		); err != nil {
			return fmt.Errorf("saving device %s/%s: %w", reg.Name, nd.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registry %q: %w", reg.Name, err)
	}
	return nil
}

// marshalPairs encodes a pair sequence, writing nil as [].
func marshalPairs(pairs []registry.Pair) (string, error) {
	if pairs == nil {
		pairs = []registry.Pair{}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
