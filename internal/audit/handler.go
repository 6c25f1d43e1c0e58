package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/keyfold/keyfold/internal/platform/httpx"
	"github.com/keyfold/keyfold/internal/shared"
)

// Handler serves the org audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type timelineResponse struct {
	Rows   []timelineRowResponse `json:"rows"`
	Paging PagingInfo            `json:"paging"`
}

type timelineRowResponse struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Action  string    `json:"action"`
	Message string    `json:"message"`
}

// Timeline handles GET /audit for the authenticated caller's org.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok || !claims.Valid() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters := parseFilters(r)
	result, err := h.service.Timeline(r.Context(), claims.OrgID, filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := timelineResponse{Paging: result.Paging, Rows: make([]timelineRowResponse, 0, len(result.Rows))}
	for _, row := range result.Rows {
		out.Rows = append(out.Rows, timelineRowResponse{At: row.At, Actor: row.Actor, Action: row.Action, Message: row.Message})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		filters.PageSize = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = v
	}
	return filters
}
