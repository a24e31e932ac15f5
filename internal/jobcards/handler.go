package jobcards

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fixdesk/fixdesk/internal/platform/httpx"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Handler wires HTTP endpoints for the repair workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the jobcards handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: mw}
}

// MountRoutes registers job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/history", h.handleHistory)
	r.Get("/{id}/parts", h.handleParts)
	r.Get("/{id}/notes", h.handleNotes)
	r.Post("/{id}/notes", h.handleAddNote)
	r.With(h.rbac.Require(rbac.CapJobsCreate)).Post("/", h.handleCreate)
	r.With(h.rbac.Require(rbac.CapJobsTransition)).Post("/{id}/transition", h.handleTransition)
	r.With(h.rbac.Require(rbac.CapJobsTransition)).Post("/{id}/diagnosis", h.handleDiagnosis)
	r.With(h.rbac.Require(rbac.CapJobsAssign)).Post("/{id}/technician", h.handleAssign)
	r.With(h.rbac.Require(rbac.CapJobsDeliver)).Post("/{id}/deliver", h.handleDeliver)
	r.With(h.rbac.Require(rbac.CapJobsPasswordAccess)).Post("/{id}/device-passwords", h.handleDevicePasswords)
	r.With(h.rbac.Require(rbac.CapPartsRequest)).Post("/{id}/parts", h.handleRequestPart)
	r.With(h.rbac.Require(rbac.CapPartsApprove)).Post("/parts/{partID}/approve", h.handleApprovePart)
	r.With(h.rbac.Require(rbac.CapPartsApprove)).Post("/parts/{partID}/reject", h.handleRejectPart)
}

// JobForm is the intake payload.
type JobForm struct {
	BranchID          int64    `json:"branch_id" validate:"required"`
	CustomerID        int64    `json:"customer_id" validate:"required"`
	DeviceType        string   `json:"device_type" validate:"required,max=100"`
	Brand             string   `json:"brand" validate:"max=100"`
	Model             string   `json:"model" validate:"max=100"`
	SerialNumber      string   `json:"serial_number" validate:"max=100"`
	Complaint         string   `json:"complaint" validate:"required"`
	PhysicalCondition string   `json:"physical_condition"`
	Accessories       []string `json:"accessories"`
	DevicePassword    string   `json:"device_password"`
	BIOSPassword      string   `json:"bios_password"`
	EstimatedCost     string   `json:"estimated_cost"`
	IsUrgent          bool     `json:"is_urgent"`
	IsWarranty        bool     `json:"is_warranty"`
}

// TransitionForm requests a status change.
type TransitionForm struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

// DiagnosisForm records findings and an estimate.
type DiagnosisForm struct {
	Notes         string `json:"notes" validate:"required"`
	EstimatedCost string `json:"estimated_cost" validate:"required"`
}

// AssignForm sets the technician.
type AssignForm struct {
	TechnicianID int64 `json:"technician_id" validate:"required"`
}

// DeliverForm carries the pickup code.
type DeliverForm struct {
	OTP string `json:"otp" validate:"required,len=6"`
}

// PasswordAccessForm carries the mandatory access reason.
type PasswordAccessForm struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PartForm requests a part.
type PartForm struct {
	ItemID       int64  `json:"item_id"`
	Name         string `json:"name" validate:"required_without=ItemID,max=255"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice    string `json:"unit_price"`
	WarrantyDays int    `json:"warranty_days"`
}

// RejectForm declines a part request.
type RejectForm struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// NoteForm appends commentary.
type NoteForm struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := httpx.DecodeJSON(r, form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func jobID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return 0, false
	}
	return id, true
}

// respond maps workflow state conflicts before falling back to the
// shared error translation.
func respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", "transition not allowed from the current status")
	case errors.Is(err, ErrJobReadOnly):
		httpx.Problem(w, http.StatusConflict, "Conflict", "job is in a terminal status")
	case errors.Is(err, ErrDeliveryNotVerified):
		httpx.Problem(w, http.StatusConflict, "Conflict", "delivery code verification failed")
	case errors.Is(err, ErrPartAlreadyDecided):
		httpx.Problem(w, http.StatusConflict, "Conflict", "part request already decided")
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
	filters := JobFilters{
		Status:    Status(q.Get("status")),
		Search:    q.Get("search"),
		IsUrgent:  q.Get("urgent") == "true",
		BranchIDs: parseIDList(q.Get("branch_ids")),
		Page:      atoiOr(q.Get("page"), 1),
		PerPage:   atoiOr(q.Get("per_page"), 20),
	}
	if raw := q.Get("technician_id"); raw != "" {
		filters.TechnicianID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("customer_id"); raw != "" {
		filters.CustomerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	jobs, pagination, err := h.service.ListJobs(r.Context(), principal, filters)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"jobs": jobs, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.service.GetJob(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var form JobForm
	if !h.decode(w, r, &form) {
		return
	}
	estimate := decimal.Zero
	if form.EstimatedCost != "" {
		parsed, err := decimal.NewFromString(form.EstimatedCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "estimated_cost must be numeric")
			return
		}
		estimate = parsed
	}
	job, err := h.service.CreateJob(r.Context(), principal, CreateJobInput{
		BranchID:          form.BranchID,
		CustomerID:        form.CustomerID,
		DeviceType:        form.DeviceType,
		Brand:             form.Brand,
		Model:             form.Model,
		SerialNumber:      form.SerialNumber,
		Complaint:         form.Complaint,
		PhysicalCondition: form.PhysicalCondition,
		Accessories:       form.Accessories,
		DevicePassword:    form.DevicePassword,
		BIOSPassword:      form.BIOSPassword,
		EstimatedCost:     estimate,
		IsUrgent:          form.IsUrgent,
		IsWarranty:        form.IsWarranty,
	})
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form TransitionForm
	if !h.decode(w, r, &form) {
		return
	}
	job, err := h.service.RequestTransition(r.Context(), principal, id, Status(strings.ToUpper(form.Status)), form.Note)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form DiagnosisForm
	if !h.decode(w, r, &form) {
		return
	}
	estimate, err := decimal.NewFromString(form.EstimatedCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "estimated_cost must be numeric")
		return
	}
	job, err := h.service.RecordDiagnosis(r.Context(), principal, id, form.Notes, estimate)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form AssignForm
	if !h.decode(w, r, &form) {
		return
	}
	job, err := h.service.AssignTechnician(r.Context(), principal, id, form.TechnicianID)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form DeliverForm
	if !h.decode(w, r, &form) {
		return
	}
	job, err := h.service.Deliver(r.Context(), principal, id, form.OTP)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleDevicePasswords(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form PasswordAccessForm
	if !h.decode(w, r, &form) {
		return
	}
	passwords, err := h.service.AccessDevicePassword(r.Context(), principal, id, form.Reason)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, passwords)
}

func (h *Handler) handleRequestPart(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form PartForm
	if !h.decode(w, r, &form) {
		return
	}
	unitPrice := decimal.Zero
	if form.UnitPrice != "" {
		parsed, err := decimal.NewFromString(form.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be numeric")
			return
		}
		unitPrice = parsed
	}
	part, err := h.service.RequestPart(r.Context(), principal, PartRequestInput{
		JobID:        id,
		ItemID:       form.ItemID,
		Name:         form.Name,
		Quantity:     form.Quantity,
		UnitPrice:    unitPrice,
		WarrantyDays: form.WarrantyDays,
	})
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, part)
}

func (h *Handler) handleApprovePart(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "partID")
	if !ok {
		return
	}
	part, err := h.service.ApprovePart(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) handleRejectPart(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "partID")
	if !ok {
		return
	}
	var form RejectForm
	if !h.decode(w, r, &form) {
		return
	}
	part, err := h.service.RejectPart(r.Context(), principal, id, form.Reason)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) handleParts(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	parts, err := h.service.Parts(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parts": parts})
}

func (h *Handler) handleNotes(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	notes, err := h.service.Notes(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := jobID(w, r, "id")
	if !ok {
		return
	}
	var form NoteForm
	if !h.decode(w, r, &form) {
		return
	}
	note, err := h.service.AddNote(r.Context(), principal, id, form.Body)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func parseIDList(raw string) []int64 {
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
