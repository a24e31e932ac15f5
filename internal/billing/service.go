package billing

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fixdesk/fixdesk/internal/audit"
	"github.com/fixdesk/fixdesk/internal/jobcards"
	"github.com/fixdesk/fixdesk/internal/masterdata/branches"
	"github.com/fixdesk/fixdesk/internal/masterdata/customers"
	"github.com/fixdesk/fixdesk/internal/notify"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64, branchIDs []int64) (Invoice, error)
	ListInvoices(ctx context.Context, filters InvoiceFilters) ([]Invoice, int, error)
	ListLineItems(ctx context.Context, invoiceID int64) ([]LineItem, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// TxRepository exposes the operations available inside a billing
// transaction.
type TxRepository interface {
	AllocateInvoiceNumber(ctx context.Context, branchID int64) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	InsertLineItem(ctx context.Context, line LineItem) (LineItem, error)
	ListLineItems(ctx context.Context, invoiceID int64) ([]LineItem, error)
	UpdateTotals(ctx context.Context, inv Invoice) error
	MarkFinalized(ctx context.Context, id int64, at time.Time) error
	InsertPayment(ctx context.Context, pm Payment) (Payment, error)
	MarkPaymentVerified(ctx context.Context, invoiceID, paymentID int64) error
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	UpdatePaymentState(ctx context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error
	MarkCancelled(ctx context.Context, id int64, reason string) error
}

// BranchDirectory resolves branch masterdata for numbering and tax.
type BranchDirectory interface {
	Get(ctx context.Context, id int64) (branches.Branch, error)
}

// CustomerDirectory resolves customers for snapshotting.
type CustomerDirectory interface {
	Get(ctx context.Context, id int64) (customers.Customer, error)
}

// JobSource reads delivered jobs and their consumed parts when composing
// an invoice.
type JobSource interface {
	GetJob(ctx context.Context, p rbac.Principal, jobID int64) (jobcards.JobCard, error)
	Parts(ctx context.Context, p rbac.Principal, jobID int64) ([]jobcards.PartRequest, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service is the invoicing and payments engine.
type Service struct {
	repo      RepositoryPort
	guard     *scope.Guard
	branches  BranchDirectory
	customers CustomerDirectory
	jobs      JobSource
	audit     AuditPort
	dispatch  notify.Dispatcher
}

// NewService builds Service.
func NewService(repo RepositoryPort, guard *scope.Guard, branchDir BranchDirectory,
	customerDir CustomerDirectory, jobs JobSource, auditor AuditPort, dispatch notify.Dispatcher) *Service {
	if dispatch == nil {
		dispatch = notify.NopDispatcher{}
	}
	return &Service{
		repo: repo, guard: guard, branches: branchDir, customers: customerDir,
		jobs: jobs, audit: auditor, dispatch: dispatch,
	}
}

// CreateInvoice issues a DRAFT invoice for a job. The customer snapshot
// and the interstate flag are fixed here; the invoice number comes from
// the branch counter in the same transaction as the insert, so numbers
// are strictly increasing and never reused. A rolled-back creation skips
// its number rather than reissuing it.
func (s *Service) CreateInvoice(ctx context.Context, p rbac.Principal, input CreateInvoiceInput) (Invoice, error) {
	if !p.Can(rbac.CapBillingCreate) {
		return Invoice{}, shared.ErrUnauthorized
	}
	if err := s.guard.Authorize(ctx, p, input.BranchID); err != nil {
		return Invoice{}, err
	}
	if len(input.Lines) == 0 {
		return Invoice{}, shared.NewValidationError("lines", "at least one line is required")
	}
	for _, line := range input.Lines {
		if err := validateLine(line); err != nil {
			return Invoice{}, err
		}
	}

	branch, err := s.branches.Get(ctx, input.BranchID)
	if err != nil {
		return Invoice{}, err
	}
	job, err := s.jobs.GetJob(ctx, p, input.JobID)
	if err != nil {
		return Invoice{}, err
	}
	if job.BranchID != input.BranchID {
		return Invoice{}, shared.ErrNotFound
	}
	customer, err := s.customers.Get(ctx, job.CustomerID)
	if err != nil {
		return Invoice{}, err
	}

	interstate := Interstate(branch.StateCode, customer.StateCode)
	lines := make([]LineItem, 0, len(input.Lines))
	for _, in := range input.Lines {
		lines = append(lines, ComputeLine(in, interstate))
	}
	subtotal, discount, cgst, sgst, igst, tax, total := Totals(lines)

	now := time.Now().UTC()
	invoice := Invoice{
		OrganizationID:    p.OrganizationID,
		BranchID:          input.BranchID,
		JobID:             input.JobID,
		CustomerName:      customer.FullName(),
		CustomerMobile:    customer.Mobile,
		CustomerAddress:   customer.Address,
		CustomerGSTIN:     customer.GSTIN,
		CustomerStateCode: customer.StateCode,
		IsInterstate:      interstate,
		Subtotal:          subtotal,
		DiscountTotal:     discount,
		CGSTTotal:         cgst,
		SGSTTotal:         sgst,
		IGSTTotal:         igst,
		TaxTotal:          tax,
		Total:             total,
		Status:            StatusDraft,
		DueDate:           input.DueDate,
	}

	var created Invoice
	err = shared.WithRetry(ctx, shared.DefaultRetryAttempts, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			seq, err := tx.AllocateInvoiceNumber(ctx, input.BranchID)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = branches.FormatDocNumber(branch.InvoicePrefix, branch.Code, seq, now)
			created, err = tx.InsertInvoice(ctx, invoice)
			if err != nil {
				return err
			}
			for _, line := range lines {
				line.InvoiceID = created.ID
				if _, err := tx.InsertLineItem(ctx, line); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recordAudit(ctx, p, created.BranchID, "invoice.created", created.ID, map[string]any{
		"invoice_number": created.InvoiceNumber, "total": created.Total.String(),
	})
	return created, nil
}

// CreateInvoiceFromJob composes line items from a job's service charge
// and its approved parts at their snapshot prices, then issues the
// invoice.
func (s *Service) CreateInvoiceFromJob(ctx context.Context, p rbac.Principal, jobID int64, serviceCharge, gstRate decimal.Decimal, dueDate *time.Time) (Invoice, error) {
	job, err := s.jobs.GetJob(ctx, p, jobID)
	if err != nil {
		return Invoice{}, err
	}
	parts, err := s.jobs.Parts(ctx, p, jobID)
	if err != nil {
		return Invoice{}, err
	}

	var lines []LineInput
	if serviceCharge.IsPositive() {
		lines = append(lines, LineInput{
			Type:        LineService,
			Description: "Repair service: " + strings.TrimSpace(job.DeviceType+" "+job.Brand+" "+job.Model),
			Quantity:    1,
			UnitPrice:   serviceCharge,
			GSTRate:     gstRate,
		})
	}
	for _, part := range parts {
		if part.Status != jobcards.PartApproved {
			continue
		}
		lines = append(lines, LineInput{
			Type:        LinePart,
			Description: part.Name,
			Quantity:    part.Quantity,
			UnitPrice:   part.UnitPrice,
			GSTRate:     gstRate,
			ItemID:      part.ItemID,
		})
	}
	return s.CreateInvoice(ctx, p, CreateInvoiceInput{
		BranchID: job.BranchID,
		JobID:    job.ID,
		DueDate:  dueDate,
		Lines:    lines,
	})
}

// AddLineItem appends a line to a draft. Finalized invoices reject edits.
func (s *Service) AddLineItem(ctx context.Context, p rbac.Principal, invoiceID int64, in LineInput) (Invoice, error) {
	if !p.Can(rbac.CapBillingCreate) {
		return Invoice{}, shared.ErrUnauthorized
	}
	if err := validateLine(in); err != nil {
		return Invoice{}, err
	}
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, inv.BranchID); authErr != nil {
			return authErr
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		if inv.IsFinalized {
			return ErrInvoiceImmutable
		}
		line := ComputeLine(in, inv.IsInterstate)
		line.InvoiceID = inv.ID
		if _, err := tx.InsertLineItem(ctx, line); err != nil {
			return err
		}
		lines, err := tx.ListLineItems(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv.Subtotal, inv.DiscountTotal, inv.CGSTTotal, inv.SGSTTotal, inv.IGSTTotal, inv.TaxTotal, inv.Total = Totals(lines)
		if err := tx.UpdateTotals(ctx, inv); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, p, updated.BranchID, "invoice.line_added", updated.ID, nil)
	return updated, nil
}

// FinalizeInvoice freezes the line items. Twice fails with
// ErrAlreadyFinalized.
func (s *Service) FinalizeInvoice(ctx context.Context, p rbac.Principal, invoiceID int64) (Invoice, error) {
	if !p.Can(rbac.CapBillingFinalize) {
		return Invoice{}, shared.ErrUnauthorized
	}
	var finalized Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, inv.BranchID); authErr != nil {
			return authErr
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		if inv.IsFinalized {
			return ErrAlreadyFinalized
		}
		now := time.Now().UTC()
		if err := tx.MarkFinalized(ctx, inv.ID, now); err != nil {
			return err
		}
		inv.IsFinalized = true
		inv.FinalizedAt = &now
		inv.Status = StatusPending
		if err := tx.UpdatePaymentState(ctx, inv.ID, inv.PaidAmount, inv.Status); err != nil {
			return err
		}
		finalized = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, p, finalized.BranchID, "invoice.finalized", finalized.ID, map[string]any{
		"invoice_number": finalized.InvoiceNumber,
	})
	return finalized, nil
}

// RecordPayment appends a payment and rederives the paid amount and
// status from the full payment set under the invoice row lock. Two
// concurrent payments therefore serialise and both land.
func (s *Service) RecordPayment(ctx context.Context, p rbac.Principal, invoiceID int64, input PaymentInput) (Invoice, error) {
	if !p.Can(rbac.CapBillingPayment) {
		return Invoice{}, shared.ErrUnauthorized
	}
	if !input.Amount.IsPositive() {
		return Invoice{}, shared.NewValidationError("amount", "must be positive")
	}
	if !ValidPaymentMethod(input.Method) {
		return Invoice{}, shared.NewValidationError("method", "unknown payment method")
	}
	var updated Invoice
	err := shared.WithRetry(ctx, shared.DefaultRetryAttempts, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
			if err != nil {
				return err
			}
			if authErr := s.guard.Authorize(ctx, p, inv.BranchID); authErr != nil {
				return authErr
			}
			if inv.Status == StatusCancelled {
				return ErrInvoiceCancelled
			}
			if !inv.IsFinalized {
				return ErrInvoiceNotFinalized
			}
			paidAt := input.PaidAt
			if paidAt.IsZero() {
				paidAt = time.Now().UTC()
			}
			if _, err := tx.InsertPayment(ctx, Payment{
				InvoiceID:  inv.ID,
				Amount:     input.Amount.Round(2),
				Method:     input.Method,
				Reference:  input.Reference,
				IsVerified: settlesInstantly(input.Method),
				ActorID:    p.UserID,
				PaidAt:     paidAt,
			}); err != nil {
				return err
			}
			paid, err := tx.SumPayments(ctx, inv.ID)
			if err != nil {
				return err
			}
			inv.PaidAmount = paid
			inv.Status = deriveStatus(inv)
			if err := tx.UpdatePaymentState(ctx, inv.ID, inv.PaidAmount, inv.Status); err != nil {
				return err
			}
			updated = inv
			return nil
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, p, updated.BranchID, "payment.recorded", updated.ID, map[string]any{
		"amount": input.Amount.String(), "method": string(input.Method),
	})
	s.dispatch.Dispatch(ctx, notify.Event{
		Type:     notify.EventPaymentReceived,
		BranchID: updated.BranchID,
		Recipient: notify.Recipient{
			Mobile: updated.CustomerMobile,
			SMS:    updated.CustomerMobile != "",
		},
		Data: map[string]string{
			"invoice_number": updated.InvoiceNumber,
			"amount":         FormatINR(input.Amount),
		},
	})
	return updated, nil
}

// settlesInstantly reports instruments that need no later reconciliation.
func settlesInstantly(m PaymentMethod) bool {
	switch m {
	case PayCash, PayUPI, PayCard, PayWallet:
		return true
	}
	return false
}

// VerifyPayment marks a deferred-settlement payment (cheque, NEFT) as
// reconciled. Verification is bookkeeping only; the invoice status always
// derives from the full payment set.
func (s *Service) VerifyPayment(ctx context.Context, p rbac.Principal, invoiceID, paymentID int64) error {
	if !p.Can(rbac.CapBillingPayment) {
		return shared.ErrUnauthorized
	}
	var branchID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, inv.BranchID); authErr != nil {
			return authErr
		}
		branchID = inv.BranchID
		return tx.MarkPaymentVerified(ctx, inv.ID, paymentID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, p, branchID, "payment.verified", invoiceID, map[string]any{
		"payment_id": paymentID,
	})
	return nil
}

// CancelInvoice voids an invoice before any payment exists. The reason is
// mandatory; a paid or partially paid invoice cannot be cancelled.
func (s *Service) CancelInvoice(ctx context.Context, p rbac.Principal, invoiceID int64, reason string) (Invoice, error) {
	if !p.Can(rbac.CapBillingCancel) {
		return Invoice{}, shared.ErrUnauthorized
	}
	if strings.TrimSpace(reason) == "" {
		return Invoice{}, shared.NewValidationError("reason", "is required")
	}
	var cancelled Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, inv.BranchID); authErr != nil {
			return authErr
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		paid, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return ErrCannotCancelPaidInvoice
		}
		if err := tx.MarkCancelled(ctx, inv.ID, reason); err != nil {
			return err
		}
		inv.Status = StatusCancelled
		inv.CancelReason = reason
		cancelled = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, p, cancelled.BranchID, "invoice.cancelled", cancelled.ID, map[string]any{
		"reason": reason,
	})
	return cancelled, nil
}

// GetInvoice fetches one invoice inside the principal's scope.
func (s *Service) GetInvoice(ctx context.Context, p rbac.Principal, invoiceID int64) (Invoice, error) {
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.GetInvoice(ctx, invoiceID, branchIDs)
}

// ListInvoices returns invoices in the principal's visible branches.
func (s *Service) ListInvoices(ctx context.Context, p rbac.Principal, filters InvoiceFilters) ([]Invoice, shared.Pagination, error) {
	branchIDs, err := s.guard.Filter(ctx, p, filters.BranchIDs)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filters.BranchIDs = branchIDs
	if filters.PerPage <= 0 || filters.PerPage > 100 {
		filters.PerPage = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	invoices, total, err := s.repo.ListInvoices(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return invoices, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// LineItems returns the lines of an invoice in scope.
func (s *Service) LineItems(ctx context.Context, p rbac.Principal, invoiceID int64) ([]LineItem, error) {
	if _, err := s.GetInvoice(ctx, p, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListLineItems(ctx, invoiceID)
}

// Payments returns the payment trail of an invoice in scope.
func (s *Service) Payments(ctx context.Context, p rbac.Principal, invoiceID int64) ([]Payment, error) {
	if _, err := s.GetInvoice(ctx, p, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

func deriveStatus(inv Invoice) InvoiceStatus {
	switch {
	case inv.Status == StatusCancelled:
		return StatusCancelled
	case !inv.IsFinalized:
		return StatusDraft
	case inv.BalanceDue().LessThanOrEqual(decimal.Zero):
		return StatusPaid
	case inv.PaidAmount.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

func validateLine(in LineInput) error {
	switch in.Type {
	case LineService, LinePart, LineLabour, LineOther:
	default:
		return shared.NewValidationError("type", "must be SERVICE, PART, LABOUR or OTHER")
	}
	if strings.TrimSpace(in.Description) == "" {
		return shared.NewValidationError("description", "is required")
	}
	if in.Quantity <= 0 {
		return shared.NewValidationError("quantity", "must be positive")
	}
	if in.UnitPrice.IsNegative() {
		return shared.NewValidationError("unit_price", "must not be negative")
	}
	if in.GSTRate.IsNegative() || in.GSTRate.GreaterThan(hundred) {
		return shared.NewValidationError("gst_rate", "must be between 0 and 100")
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(hundred) {
		return shared.NewValidationError("discount_percent", "must be between 0 and 100")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, p rbac.Principal, branchID int64, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		BranchID: branchID,
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Meta:     meta,
	})
}
