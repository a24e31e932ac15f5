package notify

// Event types emitted by the service layer. Each type maps to a message
// template rendered by the worker before handing off to the SMS or WhatsApp
// gateway.
const (
	EventJobCreated         = "job.created"
	EventJobStatusChanged   = "job.status_changed"
	EventTechnicianAssigned = "job.technician_assigned"
	EventDeliveryOTP        = "delivery.otp"
	EventLowStock           = "inventory.low_stock"
	EventPaymentReceived    = "payment.received"
)

// Recipient identifies where a customer-facing message should go. Branch
// settings decide which channels are live; both flags false means the event
// is recorded but nothing is sent.
type Recipient struct {
	Mobile   string `json:"mobile"`
	SMS      bool   `json:"sms"`
	WhatsApp bool   `json:"whatsapp"`
}

// Event is the unit handed to the dispatcher. Data carries the template
// variables for the event type, e.g. job_number, status, otp, amount.
type Event struct {
	Type      string            `json:"type"`
	BranchID  int64             `json:"branch_id"`
	Recipient Recipient         `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
}
