package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates billing states. PENDING/PARTIAL/PAID are derived
// from the payment set, never set directly.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusPending   InvoiceStatus = "PENDING"
	StatusPartial   InvoiceStatus = "PARTIAL"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// LineItemType classifies a billable line.
type LineItemType string

const (
	LineService LineItemType = "SERVICE"
	LinePart    LineItemType = "PART"
	LineLabour  LineItemType = "LABOUR"
	LineOther   LineItemType = "OTHER"
)

// PaymentMethod enumerates accepted instruments.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "CASH"
	PayUPI    PaymentMethod = "UPI"
	PayCard   PaymentMethod = "CARD"
	PayNEFT   PaymentMethod = "NEFT"
	PayCheque PaymentMethod = "CHEQUE"
	PayWallet PaymentMethod = "WALLET"
	PayOther  PaymentMethod = "OTHER"
)

// ValidPaymentMethod reports whether m is a known instrument.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PayCash, PayUPI, PayCard, PayNEFT, PayCheque, PayWallet, PayOther:
		return true
	}
	return false
}

// Invoice is a branch-scoped billing document. Customer fields are
// snapshotted at creation; later customer edits never alter an issued
// invoice. PaidAmount is recomputed from the payment set under a row lock
// on every application, never adjusted incrementally.
type Invoice struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	BranchID       int64  `json:"branch_id"`
	JobID          int64  `json:"job_id,omitempty"`
	InvoiceNumber  string `json:"invoice_number"`

	CustomerName      string `json:"customer_name"`
	CustomerMobile    string `json:"customer_mobile"`
	CustomerAddress   string `json:"customer_address"`
	CustomerGSTIN     string `json:"customer_gstin"`
	CustomerStateCode string `json:"customer_state_code"`

	IsInterstate  bool            `json:"is_interstate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	CGSTTotal     decimal.Decimal `json:"cgst_total"`
	SGSTTotal     decimal.Decimal `json:"sgst_total"`
	IGSTTotal     decimal.Decimal `json:"igst_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`

	Status       InvoiceStatus `json:"status"`
	IsFinalized  bool          `json:"is_finalized"`
	CancelReason string        `json:"cancel_reason,omitempty"`

	DueDate     *time.Time `json:"due_date,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BalanceDue is the outstanding amount.
func (i Invoice) BalanceDue() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

// LineItem is one billable line with its computed tax split.
type LineItem struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	Type            LineItemType    `json:"type"`
	Description     string          `json:"description"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	GSTRate         decimal.Decimal `json:"gst_rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	LineAmount      decimal.Decimal `json:"line_amount"`
	CGSTAmount      decimal.Decimal `json:"cgst_amount"`
	SGSTAmount      decimal.Decimal `json:"sgst_amount"`
	IGSTAmount      decimal.Decimal `json:"igst_amount"`
	ItemID          int64           `json:"item_id,omitempty"`
}

// Payment is an immutable record against an invoice. IsVerified marks
// instruments that clear later (cheque, NEFT) as reconciled; it never
// affects the derived invoice status.
type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	IsVerified bool            `json:"is_verified"`
	ActorID    int64           `json:"actor_id"`
	PaidAt     time.Time       `json:"paid_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LineInput is the request shape for one line.
type LineInput struct {
	Type            LineItemType
	Description     string
	Quantity        int64
	UnitPrice       decimal.Decimal
	GSTRate         decimal.Decimal
	DiscountPercent decimal.Decimal
	ItemID          int64
}

// CreateInvoiceInput collects invoice creation fields.
type CreateInvoiceInput struct {
	BranchID int64
	JobID    int64
	DueDate  *time.Time
	Lines    []LineInput
}

// PaymentInput collects a payment application.
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	PaidAt    time.Time
}

// InvoiceFilters narrows invoice listings.
type InvoiceFilters struct {
	BranchIDs []int64
	Status    InvoiceStatus
	JobID     int64
	Search    string
	Page      int
	PerPage   int
}

var (
	// ErrAlreadyFinalized indicates a second finalization.
	ErrAlreadyFinalized = errors.New("billing: invoice already finalized")
	// ErrInvoiceImmutable indicates a line edit after finalization.
	ErrInvoiceImmutable = errors.New("billing: finalized invoice is immutable")
	// ErrInvoiceNotFinalized indicates a payment against a draft.
	ErrInvoiceNotFinalized = errors.New("billing: invoice not finalized")
	// ErrInvoiceCancelled indicates activity on a cancelled invoice.
	ErrInvoiceCancelled = errors.New("billing: invoice cancelled")
	// ErrCannotCancelPaidInvoice indicates a cancel after payments exist.
	ErrCannotCancelPaidInvoice = errors.New("billing: cannot cancel invoice with payments")
)
