package rbac

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/keyfold/keyfold/internal/platform/httpx"
	"github.com/keyfold/keyfold/internal/shared"
)

// PermissionsHandler serves the caller's effective permission snapshot.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler constructs the handler.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service}
}

type permissionsResponse struct {
	OrgID        string          `json:"org_id"`
	UserID       string          `json:"user_id"`
	Capabilities map[string]bool `json:"capabilities"`
	ComputedAt   time.Time       `json:"computed_at"`
}

// Effective handles GET /permissions for the authenticated caller.
func (h *PermissionsHandler) Effective(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok || !claims.Valid() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	snapshot, err := h.service.Effective(r.Context(), claims.UserID, claims.OrgID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := permissionsResponse{
		OrgID:        claims.OrgID,
		UserID:       claims.UserID,
		Capabilities: make(map[string]bool, len(snapshot.Capabilities)),
		ComputedAt:   snapshot.ComputedAt,
	}
	for capability, on := range snapshot.Capabilities {
		out.Capabilities[string(capability)] = on
	}
	httpx.JSON(w, http.StatusOK, out)
}
