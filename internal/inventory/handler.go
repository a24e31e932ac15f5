package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fixdesk/fixdesk/internal/platform/httpx"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: mw}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/adjustments", h.handleListAdjustments)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapInventoryAdjust))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Post("/{id}/adjustments", h.handleAdjust)
	})
}

// ItemForm is the create/update payload.
type ItemForm struct {
	BranchID          int64  `json:"branch_id" validate:"required"`
	SKU               string `json:"sku" validate:"required,max=50"`
	Name              string `json:"name" validate:"required,max=255"`
	Category          string `json:"category" validate:"max=100"`
	HSNCode           string `json:"hsn_code" validate:"max=10"`
	Unit              string `json:"unit" validate:"max=20"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
	PurchasePrice     string `json:"purchase_price"`
	SellingPrice      string `json:"selling_price"`
	GSTRate           string `json:"gst_rate"`
	WarrantyMonths    int    `json:"warranty_months"`
	IsActive          *bool  `json:"is_active"`
}

// AdjustmentForm is the stock movement payload.
type AdjustmentForm struct {
	Type     string `json:"type" validate:"required,oneof=ADD DEDUCT SET"`
	Quantity int64  `json:"quantity" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) decodeItem(w http.ResponseWriter, r *http.Request) (Item, bool) {
	var form ItemForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return Item{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Item{}, false
	}
	parsePrice := func(field, raw string) (decimal.Decimal, bool) {
		if raw == "" {
			return decimal.Zero, true
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", field+" must be numeric")
			return decimal.Decimal{}, false
		}
		return d, true
	}
	purchase, ok := parsePrice("purchase_price", form.PurchasePrice)
	if !ok {
		return Item{}, false
	}
	selling, ok := parsePrice("selling_price", form.SellingPrice)
	if !ok {
		return Item{}, false
	}
	rate, ok := parsePrice("gst_rate", form.GSTRate)
	if !ok {
		return Item{}, false
	}
	item := Item{
		BranchID:          form.BranchID,
		SKU:               strings.TrimSpace(form.SKU),
		Name:              strings.TrimSpace(form.Name),
		Category:          form.Category,
		HSNCode:           form.HSNCode,
		Unit:              form.Unit,
		LowStockThreshold: form.LowStockThreshold,
		PurchasePrice:     purchase,
		SellingPrice:      selling,
		GSTRate:           rate,
		WarrantyMonths:    form.WarrantyMonths,
		IsActive:          form.IsActive == nil || *form.IsActive,
	}
	return item, true
}

// respond maps stock conflicts before falling back to the shared error
// translation.
func respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", "insufficient stock for this movement")
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "movement quantity is invalid")
	case errors.Is(err, ErrItemInactive):
		httpx.Problem(w, http.StatusConflict, "Conflict", "item is inactive")
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := ItemFilters{
		Search:       q.Get("search"),
		Category:     q.Get("category"),
		LowStockOnly: q.Get("low_stock") == "true",
		BranchIDs:    parseBranchIDs(q.Get("branch_ids")),
		Page:         atoiOr(q.Get("page"), 1),
		PerPage:      atoiOr(q.Get("per_page"), 20),
	}
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true"
		filters.IsActive = &active
	}
	items, pagination, err := h.service.ListItems(r.Context(), principal, filters)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond(w, shared.ErrNotFound)
		return
	}
	item, err := h.service.GetItem(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	item, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateItem(r.Context(), principal, item)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond(w, shared.ErrNotFound)
		return
	}
	item, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	item.ID = id
	updated, err := h.service.UpdateItem(r.Context(), principal, item)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond(w, shared.ErrNotFound)
		return
	}
	var form AdjustmentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.service.Adjust(r.Context(), principal, AdjustmentInput{
		ItemID:   id,
		Type:     AdjustmentType(form.Type),
		Quantity: form.Quantity,
		Reason:   form.Reason,
	})
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond(w, shared.ErrNotFound)
		return
	}
	q := r.URL.Query()
	filters := AdjustmentFilters{
		ItemID:  id,
		Page:    atoiOr(q.Get("page"), 1),
		PerPage: atoiOr(q.Get("per_page"), 50),
	}
	if raw := q.Get("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = ts
		}
	}
	if raw := q.Get("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = ts
		}
	}
	adjustments, pagination, err := h.service.ListAdjustments(r.Context(), principal, filters)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": adjustments, "pagination": pagination})
}

func parseBranchIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
