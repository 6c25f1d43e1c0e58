package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyfold/keyfold/internal/shared"
)

// RepositoryPort defines data access for keys. Insert and Restore are the
// same write; Restore exists so a delete saga's compensation reads as what
// it is.
type RepositoryPort interface {
	Insert(ctx context.Context, key Key) error
	Get(ctx context.Context, id string) (Key, error)
	ListByOrg(ctx context.Context, orgID string) ([]Key, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, key Key) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes a new key row.
func (r *Repository) Insert(ctx context.Context, key Key) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO gpg_keys (id, org_id, name, fingerprint, public_key, encrypted_private_key, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.OrgID, key.Name, key.Fingerprint, key.PublicKey, key.EncryptedPrivateKey, key.CreatedBy, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("keys: insert: %w: %w", err, shared.ErrUnavailable)
	}
	return nil
}

// Get fetches a key by id.
func (r *Repository) Get(ctx context.Context, id string) (Key, error) {
	var key Key
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, name, fingerprint, public_key, encrypted_private_key, created_by, created_at
FROM gpg_keys WHERE id=$1`, id).
		Scan(&key.ID, &key.OrgID, &key.Name, &key.Fingerprint, &key.PublicKey, &key.EncryptedPrivateKey, &key.CreatedBy, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Key{}, shared.ErrNotFound
		}
		return Key{}, fmt.Errorf("keys: get: %w: %w", err, shared.ErrUnavailable)
	}
	return key, nil
}

// ListByOrg returns all keys of an org ordered by creation time.
func (r *Repository) ListByOrg(ctx context.Context, orgID string) ([]Key, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, name, fingerprint, public_key, encrypted_private_key, created_by, created_at
FROM gpg_keys WHERE org_id=$1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("keys: list: %w: %w", err, shared.ErrUnavailable)
	}
	defer rows.Close()
	var result []Key
	for rows.Next() {
		var key Key
		if err := rows.Scan(&key.ID, &key.OrgID, &key.Name, &key.Fingerprint, &key.PublicKey, &key.EncryptedPrivateKey, &key.CreatedBy, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("keys: list: %w: %w", err, shared.ErrUnavailable)
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys: list: %w: %w", err, shared.ErrUnavailable)
	}
	return result, nil
}

// Delete removes a key row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM gpg_keys WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("keys: delete: %w: %w", err, shared.ErrUnavailable)
	}
	return nil
}

// Restore re-inserts a previously deleted key during saga compensation.
func (r *Repository) Restore(ctx context.Context, key Key) error {
	return r.Insert(ctx, key)
}
