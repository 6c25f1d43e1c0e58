package keys

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/gate"
	"github.com/keyfold/keyfold/internal/platform/httpx"
	"github.com/keyfold/keyfold/internal/shared"
)

// Handler exposes the key API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type keyResponse struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	PublicKey   string    `json:"public_key"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(key Key) keyResponse {
	return keyResponse{
		ID:          key.ID,
		OrgID:       key.OrgID,
		Name:        key.Name,
		Fingerprint: key.Fingerprint,
		PublicKey:   key.PublicKey,
		CreatedBy:   key.CreatedBy,
		CreatedAt:   key.CreatedAt,
	}
}

// Routes mounts the key endpoints behind the permission gate. Creation is
// gated on the org (the key does not exist yet); deletion is gated on the
// key itself.
func (h *Handler) Routes(g *gate.Gate) chi.Router {
	r := chi.NewRouter()
	r.With(g.Require(authz.RelationEditor, authz.ObjectOrg, gate.ObjectSource{OrgFallback: true})).
		Post("/", h.Create)
	r.With(g.Require(authz.RelationViewer, authz.ObjectOrg, gate.ObjectSource{OrgFallback: true})).
		Get("/", h.List)
	r.With(g.Require(authz.RelationOwner, authz.ObjectGPGKey, gate.ObjectSource{URLParam: "keyID"})).
		Delete("/{keyID}", h.Delete)
	return r
}

// Create handles POST /.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	key, err := h.service.Create(r.Context(), claims, input)
	if err != nil {
		h.logger.Error("create key", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(key))
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	list, err := h.service.List(r.Context(), claims.OrgID)
	if err != nil {
		h.logger.Error("list keys", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]keyResponse, 0, len(list))
	for _, key := range list {
		out = append(out, toResponse(key))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Delete handles DELETE /{keyID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	keyID := chi.URLParam(r, "keyID")
	if err := h.service.Delete(r.Context(), claims, keyID); err != nil {
		h.logger.Error("delete key", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
