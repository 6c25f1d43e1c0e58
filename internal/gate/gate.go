// Package gate guards HTTP operations with relationship checks. The gate
// decides before the operation runs and fails closed: an unresolved object
// id or a checker failure is always a denial, each with its own reason.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/platform/httpx"
	"github.com/keyfold/keyfold/internal/shared"
)

// Reason classifies a gate decision.
type Reason string

const (
	// ReasonAllowed means a granting path exists.
	ReasonAllowed Reason = "allowed"
	// ReasonDenied means policy says no.
	ReasonDenied Reason = "permission_denied"
	// ReasonMissingResource means no object id could be resolved.
	ReasonMissingResource Reason = "missing_resource"
	// ReasonUnavailable means the checker could not decide; distinct from a
	// policy denial so callers can retry.
	ReasonUnavailable Reason = "unavailable"
	// ReasonUnauthenticated means no verified claims reached the gate.
	ReasonUnauthenticated Reason = "unauthenticated"
)

// Decision is the structured record emitted for every evaluation. The gate
// emits it to the log and monitor; it never writes audit rows itself.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Subject  authz.Subject
	Relation authz.Relation
	Object   authz.Object
}

// CheckerPort is the authorization checker consumed by the gate.
type CheckerPort interface {
	Check(ctx context.Context, subject authz.Subject, relation authz.Relation, object authz.Object) (bool, error)
}

// Monitor observes gate decisions.
type Monitor interface {
	Decision(d Decision)
}

type nopMonitor struct{}

func (nopMonitor) Decision(Decision) {}

// ObjectSource describes where the guarded object id comes from. Resolution
// order, first match wins: Explicit, URL param, query param, JSON body
// field, then the org id when OrgFallback is set.
type ObjectSource struct {
	Explicit    string
	URLParam    string
	QueryParam  string
	BodyField   string
	OrgFallback bool
}

// Gate is the request-level permission guard.
type Gate struct {
	checker CheckerPort
	logger  *slog.Logger
	monitor Monitor
}

// New constructs a Gate. A nil monitor disables decision counting.
func New(checker CheckerPort, logger *slog.Logger, monitor Monitor) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if monitor == nil {
		monitor = nopMonitor{}
	}
	return &Gate{checker: checker, logger: logger, monitor: monitor}
}

// Evaluate runs one check and returns the decision plus the error to
// surface when denied. A checker failure is reported as unavailable, never
// as a policy denial.
func (g *Gate) Evaluate(ctx context.Context, claims shared.Claims, relation authz.Relation, object authz.Object) (Decision, error) {
	subject := authz.UserSubject(claims.UserID)
	decision := Decision{Subject: subject, Relation: relation, Object: object}

	if !claims.Valid() {
		decision.Reason = ReasonUnauthenticated
		g.emit(decision)
		return decision, shared.ErrPermissionDenied
	}
	if object.ID == "" {
		decision.Reason = ReasonMissingResource
		g.emit(decision)
		return decision, shared.ErrMissingResource
	}

	allowed, err := g.checker.Check(ctx, subject, relation, object)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidArgument) {
			decision.Reason = ReasonMissingResource
			g.emit(decision)
			return decision, err
		}
		decision.Reason = ReasonUnavailable
		g.emit(decision)
		return decision, err
	}
	if !allowed {
		decision.Reason = ReasonDenied
		g.emit(decision)
		return decision, shared.ErrPermissionDenied
	}
	decision.Allowed = true
	decision.Reason = ReasonAllowed
	g.emit(decision)
	return decision, nil
}

func (g *Gate) emit(d Decision) {
	g.monitor.Decision(d)
	g.logger.Info("authorization decision",
		slog.Bool("allowed", d.Allowed),
		slog.String("reason", string(d.Reason)),
		slog.String("subject", d.Subject.ID),
		slog.String("relation", string(d.Relation)),
		slog.String("object_type", string(d.Object.Type)),
		slog.String("object_id", d.Object.ID))
}

// Require builds chi middleware that evaluates the check before the
// handler runs. On allow the resolved object is stored in the request
// context for the handler.
func (g *Gate) Require(relation authz.Relation, objectType authz.ObjectType, source ObjectSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := shared.ClaimsFromContext(r.Context())
			objectID := g.resolveObjectID(r, source, claims)
			object := authz.Object{Type: objectType, ID: objectID}

			_, err := g.Evaluate(r.Context(), claims, relation, object)
			if err != nil {
				respondDenial(w, err)
				return
			}
			ctx := contextWithObject(r.Context(), object)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveObjectID walks the configured sources in order. An empty result
// means the gate will deny with missing_resource.
func (g *Gate) resolveObjectID(r *http.Request, source ObjectSource, claims shared.Claims) string {
	if source.Explicit != "" {
		return source.Explicit
	}
	if source.URLParam != "" {
		if v := chi.URLParam(r, source.URLParam); v != "" {
			return v
		}
	}
	if source.QueryParam != "" {
		if v := strings.TrimSpace(r.URL.Query().Get(source.QueryParam)); v != "" {
			return v
		}
	}
	if source.BodyField != "" {
		if v := g.peekBodyField(r, source.BodyField); v != "" {
			return v
		}
	}
	if source.OrgFallback {
		return claims.OrgID
	}
	return ""
}

// peekBodyField reads a top-level string field from a JSON body and
// restores the body for the downstream handler.
func (g *Gate) peekBodyField(r *http.Request, field string) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(body[field], &value); err != nil {
		return ""
	}
	return value
}

func respondDenial(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrMissingResource):
		httpx.Problem(w, http.StatusNotFound, "Missing Resource", "no object id could be resolved for this request")
	case errors.Is(err, shared.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "authorization could not be determined")
	case errors.Is(err, shared.ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	default:
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	}
}

type objectContextKey struct{}

func contextWithObject(ctx context.Context, object authz.Object) context.Context {
	return context.WithValue(ctx, objectContextKey{}, object)
}

// ObjectFromContext returns the object resolved by Require.
func ObjectFromContext(ctx context.Context) (authz.Object, bool) {
	object, ok := ctx.Value(objectContextKey{}).(authz.Object)
	return object, ok
}
