package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/gate"
	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/internal/keys"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/internal/rbac"
	"github.com/keyfold/keyfold/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Verifier           identity.Verifier
	Gate               *gate.Gate
	KeysHandler        *keys.Handler
	PermissionsHandler *rbac.PermissionsHandler
	RolesHandler       *rbac.RolesHandler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Keyfold defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Verifier: params.Verifier,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.KeysHandler != nil {
			r.Mount("/keys", params.KeysHandler.Routes(params.Gate))
		}
		if params.PermissionsHandler != nil {
			r.Get("/permissions", params.PermissionsHandler.Effective)
		}
		if params.RolesHandler != nil {
			r.Mount("/roles", params.RolesHandler.Routes(params.Gate))
		}
		if params.AuditHandler != nil {
			r.With(params.Gate.Require(authz.RelationViewer, authz.ObjectOrg, gate.ObjectSource{OrgFallback: true})).
				Get("/audit", params.AuditHandler.Timeline)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
