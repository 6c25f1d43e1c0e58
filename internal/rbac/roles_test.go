package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/gate"
	"github.com/keyfold/keyfold/internal/shared"
)

type stubRoleManager struct {
	created  []Role
	assigned []string
	err      error
}

func (m *stubRoleManager) CreateRole(ctx context.Context, role Role) (Role, error) {
	if m.err != nil {
		return Role{}, m.err
	}
	m.created = append(m.created, role)
	return role, nil
}

func (m *stubRoleManager) AssignRole(ctx context.Context, userID, orgID, roleID string) error {
	if m.err != nil {
		return m.err
	}
	m.assigned = append(m.assigned, userID+"/"+orgID+"/"+roleID)
	return nil
}

func serveRoles(t *testing.T, manager *stubRoleManager, service *Service, claims shared.Claims) http.Handler {
	t.Helper()
	ctx := context.Background()
	store := authz.NewMemoryStore()
	require.NoError(t, store.Insert(ctx, authz.Tuple{
		Subject:  authz.UserSubject("admin"),
		Relation: authz.RelationAdmin,
		Object:   authz.Object{Type: authz.ObjectOrg, ID: "o1"},
	}))
	g := gate.New(authz.NewChecker(store, store, nil), nil, nil)

	handler := NewRolesHandler(nil, manager, service)
	routes := handler.Routes(g)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routes.ServeHTTP(w, r.WithContext(shared.ContextWithClaims(r.Context(), claims)))
	})
}

func TestCreateRoleRejectsUnknownCapability(t *testing.T) {
	manager := &stubRoleManager{}
	srv := serveRoles(t, manager, nil, shared.Claims{UserID: "admin", OrgID: "o1"})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"name":"ops","capabilities":{"secrets.read":true,"bogus.cap":true}}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, manager.created)
}

func TestCreateRolePersistsForCallersOrg(t *testing.T) {
	manager := &stubRoleManager{}
	srv := serveRoles(t, manager, nil, shared.Claims{UserID: "admin", OrgID: "o1"})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"name":"ops","capabilities":{"secrets.read":true,"keys.manage":true}}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, manager.created, 1)
	role := manager.created[0]
	require.Equal(t, "o1", role.OrgID)
	require.Equal(t, "ops", role.Name)
	require.True(t, role.Capabilities[CapKeysManage])
	require.NotEmpty(t, role.ID)
}

func TestAssignRoleInvalidatesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := &stubRoleRepo{roles: map[string]Role{}}
	cache := newTestCache(t)
	service := NewService(repo, authz.NewMemoryStore(), cache, nil)

	// Prime a snapshot for the target user.
	_, err := service.Effective(ctx, "u2", "o1")
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	manager := &stubRoleManager{}
	srv := serveRoles(t, manager, service, shared.Claims{UserID: "admin", OrgID: "o1"})

	roleID := "3b1e9c2a-8f4d-4a6b-9c0d-1e2f3a4b5c6d"
	req := httptest.NewRequest(http.MethodPost, "/assign", strings.NewReader(
		`{"user_id":"u2","role_id":"`+roleID+`"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"u2/o1/" + roleID}, manager.assigned)

	// The dropped snapshot forces a recompute.
	_, err = service.Effective(ctx, "u2", "o1")
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestRolesRequireOrgAdmin(t *testing.T) {
	manager := &stubRoleManager{}
	srv := serveRoles(t, manager, nil, shared.Claims{UserID: "intruder", OrgID: "o1"})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"name":"ops","capabilities":{"secrets.read":true}}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, manager.created)
}
