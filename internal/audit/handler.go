package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fixdesk/fixdesk/internal/platform/httpx"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Handler wires HTTP endpoints for the audit log.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapAuditView))
		r.Get("/", h.handleQuery)
	})
}

type entryResponse struct {
	ID       int64          `json:"id"`
	Ref      string         `json:"ref"`
	BranchID int64          `json:"branch_id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

func newEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:       e.ID,
		Ref:      e.Ref,
		BranchID: e.BranchID,
		ActorID:  e.ActorID,
		Action:   e.Action,
		Entity:   e.Entity,
		EntityID: e.EntityID,
		Meta:     e.Meta,
		At:       e.At,
	}
}

type queryResponse struct {
	Entries    []entryResponse   `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := Filters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if raw := q.Get("branch_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				filters.BranchIDs = append(filters.BranchIDs, id)
			}
		}
	}
	if v, err := strconv.ParseInt(q.Get("actor_id"), 10, 64); err == nil {
		filters.ActorID = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = t
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filters.PerPage = v
	}

	entries, paging, err := h.service.Query(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("audit query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := queryResponse{Entries: make([]entryResponse, 0, len(entries)), Pagination: paging}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, newEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
