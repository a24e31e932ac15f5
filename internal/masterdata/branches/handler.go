package branches

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	mdshared "github.com/fixdesk/fixdesk/internal/masterdata/shared"
	"github.com/fixdesk/fixdesk/internal/platform/httpx"
	"github.com/fixdesk/fixdesk/internal/rbac"
)

// Handler wires HTTP endpoints for branch masterdata.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the branches handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: mw}
}

// MountRoutes registers branch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapBranchesManage))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDeactivate)
	})
}

// BranchForm is the create/update payload.
type BranchForm struct {
	Code            string `json:"code" validate:"required,max=10"`
	Name            string `json:"name" validate:"required,max=255"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"omitempty,e164"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`
	GSTIN           string `json:"gstin" validate:"required,len=15"`
	StateCode       string `json:"state_code" validate:"required,len=2"`
	InvoicePrefix   string `json:"invoice_prefix" validate:"omitempty,max=10"`
	JobPrefix       string `json:"job_prefix" validate:"omitempty,max=10"`
	DefaultGSTRate  string `json:"default_gst_rate"`
	SMSEnabled      bool   `json:"sms_enabled"`
	WhatsAppEnabled bool   `json:"whatsapp_enabled"`
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (Branch, bool) {
	var form BranchForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return Branch{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Branch{}, false
	}
	rate := decimal.NewFromInt(18)
	if form.DefaultGSTRate != "" {
		parsed, err := decimal.NewFromString(form.DefaultGSTRate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "default_gst_rate must be numeric")
			return Branch{}, false
		}
		rate = parsed
	}
	return Branch{
		Code:            form.Code,
		Name:            form.Name,
		Email:           form.Email,
		Phone:           form.Phone,
		Address:         form.Address,
		City:            form.City,
		State:           form.State,
		Pincode:         form.Pincode,
		GSTIN:           form.GSTIN,
		StateCode:       form.StateCode,
		InvoicePrefix:   form.InvoicePrefix,
		JobPrefix:       form.JobPrefix,
		DefaultGSTRate:  rate,
		SMSEnabled:      form.SMSEnabled,
		WhatsAppEnabled: form.WhatsAppEnabled,
	}, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := mdshared.ListFilters{Search: q.Get("search")}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = v
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("list branches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branches": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid branch id")
		return
	}
	branch, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	branch, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), p, branch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid branch id")
		return
	}
	branch, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), p, id, branch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid branch id")
		return
	}
	if err := h.service.Deactivate(r.Context(), p, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
