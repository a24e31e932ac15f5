package customers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	mdshared "github.com/fixdesk/fixdesk/internal/masterdata/shared"
	"github.com/fixdesk/fixdesk/internal/platform/httpx"
	"github.com/fixdesk/fixdesk/internal/rbac"
)

// Handler wires HTTP endpoints for customer masterdata.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the customers handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: mw}
}

// MountRoutes registers customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapCustomersManage))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
	})
}

// CustomerForm is the create/update payload.
type CustomerForm struct {
	BranchID    int64  `json:"branch_id" validate:"required,gt=0"`
	FirstName   string `json:"first_name" validate:"required,max=150"`
	LastName    string `json:"last_name" validate:"max=150"`
	Email       string `json:"email" validate:"omitempty,email"`
	Mobile      string `json:"mobile" validate:"required"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode" validate:"omitempty,len=6,numeric"`
	StateCode   string `json:"state_code" validate:"omitempty,len=2,numeric"`
	GSTIN       string `json:"gstin" validate:"omitempty,len=15"`
	CompanyName string `json:"company_name"`
	SMSEnabled  bool   `json:"sms_enabled"`
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (Customer, bool) {
	var form CustomerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return Customer{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Customer{}, false
	}
	return Customer{
		BranchID:    form.BranchID,
		FirstName:   form.FirstName,
		LastName:    form.LastName,
		Email:       form.Email,
		Mobile:      form.Mobile,
		Address:     form.Address,
		City:        form.City,
		State:       form.State,
		Pincode:     form.Pincode,
		StateCode:   form.StateCode,
		GSTIN:       form.GSTIN,
		CompanyName: form.CompanyName,
		SMSEnabled:  form.SMSEnabled,
	}, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := mdshared.ListFilters{Search: q.Get("search")}
	if v, err := strconv.ParseInt(q.Get("branch_id"), 10, 64); err == nil {
		filters.BranchIDs = []int64{v}
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = v
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	customer, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	customer, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), p, customer)
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	customer, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), p, id, customer); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
