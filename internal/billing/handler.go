package billing

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
)

// Handler wires HTTP endpoints for invoicing and payments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: mw}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/lines", h.handleLines)
	r.Get("/{id}/payments", h.handlePayments)
	r.With(h.rbac.Require(rbac.CapBillingCreate)).Post("/", h.handleCreate)
	r.With(h.rbac.Require(rbac.CapBillingCreate)).Post("/from-job/{jobID}", h.handleCreateFromJob)
	r.With(h.rbac.Require(rbac.CapBillingCreate)).Post("/{id}/lines", h.handleAddLine)
	r.With(h.rbac.Require(rbac.CapBillingFinalize)).Post("/{id}/finalize", h.handleFinalize)
	r.With(h.rbac.Require(rbac.CapBillingPayment)).Post("/{id}/payments", h.handleRecordPayment)
	r.With(h.rbac.Require(rbac.CapBillingPayment)).Post("/{id}/payments/{paymentID}/verify", h.handleVerifyPayment)
	r.With(h.rbac.Require(rbac.CapBillingCancel)).Post("/{id}/cancel", h.handleCancel)
}

// LineForm is the request shape for one invoice line.
type LineForm struct {
	Type            string `json:"type" validate:"required,oneof=SERVICE PART LABOUR OTHER"`
	Description     string `json:"description" validate:"required,max=500"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	GSTRate         string `json:"gst_rate"`
	DiscountPercent string `json:"discount_percent"`
	ItemID          int64  `json:"item_id"`
}

// InvoiceForm is the invoice creation payload.
type InvoiceForm struct {
	BranchID int64      `json:"branch_id" validate:"required"`
	JobID    int64      `json:"job_id" validate:"required"`
	DueDate  *time.Time `json:"due_date"`
	Lines    []LineForm `json:"lines" validate:"required,min=1,dive"`
}

// FromJobForm composes an invoice from a job's parts and service charge.
type FromJobForm struct {
	ServiceCharge string     `json:"service_charge" validate:"required"`
	GSTRate       string     `json:"gst_rate"`
	DueDate       *time.Time `json:"due_date"`
}

// PaymentForm records a payment application.
type PaymentForm struct {
	Amount    string     `json:"amount" validate:"required"`
	Method    string     `json:"method" validate:"required"`
	Reference string     `json:"reference" validate:"max=255"`
	PaidAt    *time.Time `json:"paid_at"`
}

// CancelForm voids an invoice.
type CancelForm struct {
	Reason string `json:"reason" validate:"required,max=500"`
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

// respond maps billing state conflicts before falling back to the shared
// error translation.
func respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyFinalized):
		httpx.Problem(w, http.StatusConflict, "Conflict", "invoice is already finalized")
	case errors.Is(err, ErrInvoiceImmutable):
		httpx.Problem(w, http.StatusConflict, "Conflict", "finalized invoice cannot be edited")
	case errors.Is(err, ErrInvoiceNotFinalized):
		httpx.Problem(w, http.StatusConflict, "Conflict", "invoice must be finalized first")
	case errors.Is(err, ErrInvoiceCancelled):
		httpx.Problem(w, http.StatusConflict, "Conflict", "invoice is cancelled")
	case errors.Is(err, ErrCannotCancelPaidInvoice):
		httpx.Problem(w, http.StatusConflict, "Conflict", "invoice with payments cannot be cancelled")
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
	filters := InvoiceFilters{
		Status:    InvoiceStatus(strings.ToUpper(q.Get("status"))),
		Search:    q.Get("search"),
		BranchIDs: parseIDList(q.Get("branch_ids")),
		Page:      atoiOr(q.Get("page"), 1),
		PerPage:   atoiOr(q.Get("per_page"), 20),
	}
	if raw := q.Get("job_id"); raw != "" {
		filters.JobID, _ = strconv.ParseInt(raw, 10, 64)
	}
	invoices, pagination, err := h.service.ListInvoices(r.Context(), principal, filters)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleLines(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	lines, err := h.service.LineItems(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handler) handlePayments(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.Payments(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var form InvoiceForm
	if !h.decode(w, r, &form) {
		return
	}
	lines := make([]LineInput, 0, len(form.Lines))
	for _, lf := range form.Lines {
		line, ok := parseLine(w, lf)
		if !ok {
			return
		}
		lines = append(lines, line)
	}
	inv, err := h.service.CreateInvoice(r.Context(), principal, CreateInvoiceInput{
		BranchID: form.BranchID,
		JobID:    form.JobID,
		DueDate:  form.DueDate,
		Lines:    lines,
	})
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleCreateFromJob(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil || jobID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid job id")
		return
	}
	var form FromJobForm
	if !h.decode(w, r, &form) {
		return
	}
	serviceCharge, err := decimal.NewFromString(form.ServiceCharge)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "service_charge must be numeric")
		return
	}
	gstRate, ok := parseDecimalOr(w, form.GSTRate, "gst_rate", decimal.NewFromInt(18))
	if !ok {
		return
	}
	inv, err := h.service.CreateInvoiceFromJob(r.Context(), principal, jobID, serviceCharge, gstRate, form.DueDate)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var form LineForm
	if !h.decode(w, r, &form) {
		return
	}
	line, ok := parseLine(w, form)
	if !ok {
		return
	}
	inv, err := h.service.AddLineItem(r.Context(), principal, id, line)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.FinalizeInvoice(r.Context(), principal, id)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var form PaymentForm
	if !h.decode(w, r, &form) {
		return
	}
	amount, err := decimal.NewFromString(form.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be numeric")
		return
	}
	input := PaymentInput{
		Amount:    amount,
		Method:    PaymentMethod(strings.ToUpper(form.Method)),
		Reference: form.Reference,
	}
	if form.PaidAt != nil {
		input.PaidAt = *form.PaidAt
	}
	inv, err := h.service.RecordPayment(r.Context(), principal, id, input)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil || paymentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	if err := h.service.VerifyPayment(r.Context(), principal, id, paymentID); err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var form CancelForm
	if !h.decode(w, r, &form) {
		return
	}
	inv, err := h.service.CancelInvoice(r.Context(), principal, id, form.Reason)
	if err != nil {
		respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func parseLine(w http.ResponseWriter, lf LineForm) (LineInput, bool) {
	unitPrice, err := decimal.NewFromString(lf.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be numeric")
		return LineInput{}, false
	}
	gstRate, ok := parseDecimalOr(w, lf.GSTRate, "gst_rate", decimal.NewFromInt(18))
	if !ok {
		return LineInput{}, false
	}
	discount, ok := parseDecimalOr(w, lf.DiscountPercent, "discount_percent", decimal.Zero)
	if !ok {
		return LineInput{}, false
	}
	return LineInput{
		Type:            LineItemType(lf.Type),
		Description:     lf.Description,
		Quantity:        lf.Quantity,
		UnitPrice:       unitPrice,
		GSTRate:         gstRate,
		DiscountPercent: discount,
		ItemID:          lf.ItemID,
	}, true
}

func parseDecimalOr(w http.ResponseWriter, raw, field string, fallback decimal.Decimal) (decimal.Decimal, bool) {
	if raw == "" {
		return fallback, true
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", field+" must be numeric")
		return decimal.Zero, false
	}
	return parsed, true
}

func invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return 0, false
	}
	return id, true
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
