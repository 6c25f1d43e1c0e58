package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyfold/keyfold/internal/platform/db"
	"github.com/keyfold/keyfold/internal/shared"
)

// ErrNoMembership indicates the user has no role in the org.
var ErrNoMembership = errors.New("rbac: no membership")

// Repository provides PostgreSQL backed persistence for roles and org
// memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RoleFor returns the role attached to the user's org membership.
func (r *Repository) RoleFor(ctx context.Context, userID, orgID string) (Role, error) {
	var (
		role Role
		raw  []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT r.id, r.org_id, r.name, r.capabilities, r.created_at, r.updated_at
FROM org_memberships m
JOIN roles r ON r.id = m.role_id
WHERE m.user_id = $1 AND m.org_id = $2`, userID, orgID).
		Scan(&role.ID, &role.OrgID, &role.Name, &raw, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNoMembership
		}
		return Role{}, fmt.Errorf("rbac: role for: %w: %w", err, shared.ErrUnavailable)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &role.Capabilities); err != nil {
			return Role{}, fmt.Errorf("rbac: decode capabilities: %w", err)
		}
	}
	return role, nil
}

// CreateRole inserts a role. Role names are unique per org.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	raw, err := json.Marshal(role.Capabilities)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: encode capabilities: %w", err)
	}
	err = r.pool.QueryRow(ctx, `INSERT INTO roles (id, org_id, name, capabilities)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`, role.ID, role.OrgID, role.Name, raw).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w: %w", err, shared.ErrUnavailable)
	}
	return role, nil
}

// AssignRole binds the user's org membership to the role, replacing any
// previous assignment. The role must belong to the same org; the check and
// the upsert run in one transaction so a concurrent role delete cannot leave
// a cross-org assignment behind.
func (r *Repository) AssignRole(ctx context.Context, userID, orgID, roleID string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, `SELECT org_id FROM roles WHERE id = $1`, roleID).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("rbac: role %s: %w", roleID, shared.ErrNotFound)
			}
			return err
		}
		if owner != orgID {
			return fmt.Errorf("rbac: role %s belongs to another org: %w", roleID, shared.ErrInvalidArgument)
		}
		_, err := tx.Exec(ctx, `INSERT INTO org_memberships (user_id, org_id, role_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, org_id) DO UPDATE SET role_id = EXCLUDED.role_id`, userID, orgID, roleID)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidArgument) {
			return err
		}
		return fmt.Errorf("rbac: assign role: %w: %w", err, shared.ErrUnavailable)
	}
	return nil
}
