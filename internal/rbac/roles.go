package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/gate"
	"github.com/keyfold/keyfold/internal/platform/httpx"
	"github.com/keyfold/keyfold/internal/shared"
)

// RoleManagerPort is the write side of role persistence.
type RoleManagerPort interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	AssignRole(ctx context.Context, userID, orgID, roleID string) error
}

// RolesHandler exposes org role administration. Every mutation invalidates
// the affected snapshot so the next Effective call sees the change.
type RolesHandler struct {
	logger   *slog.Logger
	roles    RoleManagerPort
	service  *Service
	validate *validator.Validate
	newID    func() string
}

// NewRolesHandler constructs the handler.
func NewRolesHandler(logger *slog.Logger, roles RoleManagerPort, service *Service) *RolesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RolesHandler{
		logger:   logger,
		roles:    roles,
		service:  service,
		validate: validator.New(),
		newID:    uuid.NewString,
	}
}

// Routes mounts role administration behind an org admin check.
func (h *RolesHandler) Routes(g *gate.Gate) chi.Router {
	r := chi.NewRouter()
	r.Use(g.Require(authz.RelationAdmin, authz.ObjectOrg, gate.ObjectSource{OrgFallback: true}))
	r.Post("/", h.Create)
	r.Post("/assign", h.Assign)
	return r
}

type createRoleInput struct {
	Name         string          `json:"name" validate:"required,min=1,max=64"`
	Capabilities map[string]bool `json:"capabilities" validate:"required"`
}

type roleResponse struct {
	ID           string          `json:"id"`
	OrgID        string          `json:"org_id"`
	Name         string          `json:"name"`
	Capabilities map[string]bool `json:"capabilities"`
}

// Create handles POST /. Unknown capability names are rejected rather than
// silently stored.
func (h *RolesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var input createRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	capabilities := make(map[Capability]bool, len(input.Capabilities))
	for name, on := range input.Capabilities {
		cap := Capability(name)
		if !knownCapability(cap) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown capability "+name)
			return
		}
		capabilities[cap] = on
	}
	role, err := h.roles.CreateRole(r.Context(), Role{
		ID:           h.newID(),
		OrgID:        claims.OrgID,
		Name:         input.Name,
		Capabilities: capabilities,
	})
	if err != nil {
		h.logger.Error("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := roleResponse{ID: role.ID, OrgID: role.OrgID, Name: role.Name, Capabilities: input.Capabilities}
	httpx.JSON(w, http.StatusCreated, out)
}

type assignRoleInput struct {
	UserID string `json:"user_id" validate:"required"`
	RoleID string `json:"role_id" validate:"required,uuid4"`
}

// Assign handles POST /assign, replacing the user's role in the caller's
// org and dropping the stale permission snapshot.
func (h *RolesHandler) Assign(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var input assignRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.roles.AssignRole(r.Context(), input.UserID, claims.OrgID, input.RoleID); err != nil {
		h.logger.Error("assign role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.service != nil {
		h.service.Invalidate(r.Context(), input.UserID, claims.OrgID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func knownCapability(cap Capability) bool {
	for _, known := range Capabilities() {
		if cap == known {
			return true
		}
	}
	return false
}
