package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/registry-core/internal/registry"
)

const (
	apiKeyPrefix    = "rk"
	apiKeyIDBytes   = 6
	apiKeySecretLen = 32
)

// APIKey is a stored machine credential. The secret itself is never stored.
type APIKey struct {
	ID         string            `json:"id"`
	Identity   registry.Identity `json:"identity"`
	Name       string            `json:"name"`
	SecretHash string            `json:"-"`
	Revoked    bool              `json:"revoked"`
	CreatedAt  time.Time         `json:"created_at"`
}

// APIKeyRepository persists API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByID(ctx context.Context, id string) (*APIKey, error)
	List(ctx context.Context) ([]APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// NewAPIKey generates a key for identity. The raw key, rk_<id>_<secret>, is
// returned once; only its hash is kept on the APIKey.
func NewAPIKey(identity registry.Identity, name string) (raw string, key *APIKey, err error) {
	if identity == "" {
		return "", nil, ErrIdentityRequired
	}

	idBytes := make([]byte, apiKeyIDBytes)
	secretBytes := make([]byte, apiKeySecretLen)
	if _, err := rand.Read(idBytes); err != nil {
		return "", nil, fmt.Errorf("generating key id: %w", err)
	}
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("generating key secret: %w", err)
	}

	id := hex.EncodeToString(idBytes)
	secret := hex.EncodeToString(secretBytes)
	hash, err := HashSecret(secret)
	if err != nil {
		return "", nil, err
	}

	key = &APIKey{
		ID:         id,
		Identity:   identity,
		Name:       name,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	return apiKeyPrefix + "_" + id + "_" + secret, key, nil
}

// splitAPIKey separates a raw key into its ID and secret.
func splitAPIKey(raw string) (id, secret string, ok bool) {
	parts := strings.Split(raw, "_")
	if len(parts) != 3 || parts[0] != apiKeyPrefix || parts[1] == "" || parts[2] == "" { //nolint:mnd // prefix, id, secret
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Authenticator resolves API keys to identities.
type Authenticator struct {
	keys APIKeyRepository
}

// NewAuthenticator creates an Authenticator backed by keys.
func NewAuthenticator(keys APIKeyRepository) *Authenticator {
	return &Authenticator{keys: keys}
}

// Authenticate returns the identity owning raw, or ErrAPIKeyInvalid.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (registry.Identity, error) {
	id, secret, ok := splitAPIKey(raw)
	if !ok {
		return "", ErrAPIKeyInvalid
	}

	key, err := a.keys.GetByID(ctx, id)
	if errors.Is(err, ErrAPIKeyNotFound) {
		return "", ErrAPIKeyInvalid
	}
	if err != nil {
		return "", err
	}
	if key.Revoked {
		return "", fmt.Errorf("%w: revoked", ErrAPIKeyInvalid)
	}

	match, err := VerifySecret(secret, key.SecretHash)
	if err != nil {
		return "", fmt.Errorf("verifying api key: %w", err)
	}
	if !match {
		return "", ErrAPIKeyInvalid
	}
	return key.Identity, nil
}

// SQLiteAPIKeyRepository implements APIKeyRepository using SQLite.
type SQLiteAPIKeyRepository struct {
	db *sql.DB
}

// NewSQLiteAPIKeyRepository creates a new SQLite-backed API key repository.
func NewSQLiteAPIKeyRepository(db *sql.DB) *SQLiteAPIKeyRepository {
	return &SQLiteAPIKeyRepository{db: db}
}

// Create inserts a key.
func (r *SQLiteAPIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, identity, name, secret_hash, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.ID, string(key.Identity), key.Name, key.SecretHash, boolToInt(key.Revoked),
		key.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}
	return nil
}

// GetByID returns the key with the given ID.
func (r *SQLiteAPIKeyRepository) GetByID(ctx context.Context, id string) (*APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, identity, name, secret_hash, revoked, created_at FROM api_keys WHERE id = ?`, id)
	key, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	return key, err
}

// List returns every key, oldest first.
func (r *SQLiteAPIKeyRepository) List(ctx context.Context) ([]APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, identity, name, secret_hash, revoked, created_at FROM api_keys ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	keys := []APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// Revoke marks a key unusable. Revoking twice is not an error.
func (r *SQLiteAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var (
		key       APIKey
		identity  string
		revoked   int
		createdAt string
	)
	if err := row.Scan(&key.ID, &identity, &key.Name, &key.SecretHash, &revoked, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning api key: %w", err)
	}
	key.Identity = registry.Identity(identity)
	key.Revoked = revoked != 0
	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &key, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
