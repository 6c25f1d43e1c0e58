package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/authz"
)

type stubRoleRepo struct {
	roles map[string]Role
	err   error
	calls int
}

func (r *stubRoleRepo) RoleFor(ctx context.Context, userID, orgID string) (Role, error) {
	r.calls++
	if r.err != nil {
		return Role{}, r.err
	}
	role, ok := r.roles[userID+"/"+orgID]
	if !ok {
		return Role{}, ErrNoMembership
	}
	return role, nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestEffectiveCombinesRoleAndTupleGrants(t *testing.T) {
	ctx := context.Background()
	repo := &stubRoleRepo{roles: map[string]Role{
		"u1/o1": {Name: "developer", Capabilities: map[Capability]bool{CapSecretsRead: true, CapSecretsWrite: true}},
	}}
	tuples := authz.NewMemoryStore()
	require.NoError(t, tuples.Insert(ctx, authz.Tuple{
		Subject:  authz.UserSubject("u1"),
		Relation: authz.RelationAdmin,
		Object:   authz.Object{Type: authz.ObjectOrg, ID: "o1"},
	}))

	svc := NewService(repo, tuples, newTestCache(t), nil)
	snapshot, err := svc.Effective(ctx, "u1", "o1")
	require.NoError(t, err)

	require.True(t, snapshot.Has(CapSecretsRead))
	require.True(t, snapshot.Has(CapSecretsWrite))
	// Admin tuple widens beyond the role.
	require.True(t, snapshot.Has(CapMembersManage))
	require.True(t, snapshot.Has(CapAuditView))
}

func TestEffectiveTupleGrantsApplyWithoutMembership(t *testing.T) {
	ctx := context.Background()
	repo := &stubRoleRepo{roles: map[string]Role{}}
	tuples := authz.NewMemoryStore()
	require.NoError(t, tuples.Insert(ctx, authz.Tuple{
		Subject:  authz.UserSubject("u2"),
		Relation: authz.RelationViewer,
		Object:   authz.Object{Type: authz.ObjectOrg, ID: "o1"},
	}))

	svc := NewService(repo, tuples, newTestCache(t), nil)
	snapshot, err := svc.Effective(ctx, "u2", "o1")
	require.NoError(t, err)
	require.True(t, snapshot.Has(CapSecretsRead))
	require.False(t, snapshot.Has(CapSecretsWrite))
}

func TestEffectiveIgnoresTuplesOnOtherObjects(t *testing.T) {
	ctx := context.Background()
	repo := &stubRoleRepo{roles: map[string]Role{}}
	tuples := authz.NewMemoryStore()
	require.NoError(t, tuples.Insert(ctx, authz.Tuple{
		Subject:  authz.UserSubject("u1"),
		Relation: authz.RelationOwner,
		Object:   authz.Object{Type: authz.ObjectOrg, ID: "other-org"},
	}))
	require.NoError(t, tuples.Insert(ctx, authz.Tuple{
		Subject:  authz.UserSubject("u1"),
		Relation: authz.RelationOwner,
		Object:   authz.Object{Type: authz.ObjectGPGKey, ID: "k1"},
	}))

	svc := NewService(repo, tuples, newTestCache(t), nil)
	snapshot, err := svc.Effective(ctx, "u1", "o1")
	require.NoError(t, err)
	for _, capability := range Capabilities() {
		require.False(t, snapshot.Has(capability), "capability %s", capability)
	}
}

func TestEffectiveCachesSnapshotUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	repo := &stubRoleRepo{roles: map[string]Role{
		"u1/o1": {Name: "viewer", Capabilities: map[Capability]bool{CapSecretsRead: true}},
	}}
	tuples := authz.NewMemoryStore()
	svc := NewService(repo, tuples, newTestCache(t), nil)

	first, err := svc.Effective(ctx, "u1", "o1")
	require.NoError(t, err)
	require.False(t, first.Has(CapKeysManage))
	require.Equal(t, 1, repo.calls)

	// Role mutation alone is invisible until the snapshot is invalidated.
	repo.roles["u1/o1"] = Role{Name: "admin", Capabilities: map[Capability]bool{CapSecretsRead: true, CapKeysManage: true}}
	stale, err := svc.Effective(ctx, "u1", "o1")
	require.NoError(t, err)
	require.False(t, stale.Has(CapKeysManage))
	require.Equal(t, 1, repo.calls)

	svc.Invalidate(ctx, "u1", "o1")
	fresh, err := svc.Effective(ctx, "u1", "o1")
	require.NoError(t, err)
	require.True(t, fresh.Has(CapKeysManage))
	require.Equal(t, 2, repo.calls)
}

func TestEffectiveWorksWithNilCache(t *testing.T) {
	ctx := context.Background()
	repo := &stubRoleRepo{roles: map[string]Role{
		"u1/o1": {Name: "viewer", Capabilities: map[Capability]bool{CapSecretsRead: true}},
	}}
	svc := NewService(repo, authz.NewMemoryStore(), nil, nil)

	snapshot, err := svc.Effective(ctx, "u1", "o1")
	require.NoError(t, err)
	require.True(t, snapshot.Has(CapSecretsRead))
}
