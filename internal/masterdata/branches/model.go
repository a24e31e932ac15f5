package branches

import (
	"time"

	"github.com/shopspring/decimal"
)

// Branch is the tenant-scoping unit: one physical service center. Every
// job card, inventory item and invoice carries a branch reference and is
// never visible outside the branch's accessible-principal set.
type Branch struct {
	ID              int64           `json:"id"`
	OrganizationID  int64           `json:"organization_id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Address         string          `json:"address"`
	City            string          `json:"city"`
	State           string          `json:"state"`
	Pincode         string          `json:"pincode"`
	GSTIN           string          `json:"gstin"`
	StateCode       string          `json:"state_code"`
	InvoicePrefix   string          `json:"invoice_prefix"`
	JobPrefix       string          `json:"job_prefix"`
	DefaultGSTRate  decimal.Decimal `json:"default_gst_rate"`
	SMSEnabled      bool            `json:"sms_enabled"`
	WhatsAppEnabled bool            `json:"whatsapp_enabled"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
