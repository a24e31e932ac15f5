package jobcards

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the repair workflow states.
type Status string

const (
	StatusReceived         Status = "RECEIVED"
	StatusDiagnosis        Status = "DIAGNOSIS"
	StatusEstimateShared   Status = "ESTIMATE_SHARED"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusWaitingForParts  Status = "WAITING_FOR_PARTS"
	StatusRepairInProgress Status = "REPAIR_IN_PROGRESS"
	StatusReadyForDelivery Status = "READY_FOR_DELIVERY"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
)

// JobCard tracks one device through intake, repair and delivery. The
// encrypted password fields never leave the package; reads go through
// AccessDevicePassword only.
type JobCard struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	BranchID       int64  `json:"branch_id"`
	CustomerID     int64  `json:"customer_id"`
	JobNumber      string `json:"job_number"`
	Status         Status `json:"status"`

	DeviceType        string   `json:"device_type"`
	Brand             string   `json:"brand"`
	Model             string   `json:"model"`
	SerialNumber      string   `json:"serial_number"`
	Complaint         string   `json:"complaint"`
	PhysicalCondition string   `json:"physical_condition"`
	Accessories       []string `json:"accessories"`

	devicePasswordEnc string
	biosPasswordEnc   string

	DiagnosisNotes string          `json:"diagnosis_notes"`
	EstimatedCost  decimal.Decimal `json:"estimated_cost"`
	IsUrgent       bool            `json:"is_urgent"`
	IsWarranty     bool            `json:"is_warranty"`

	TechnicianID int64 `json:"technician_id,omitempty"`
	ReceivedByID int64 `json:"received_by_id"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the job accepts further transitions.
func (j JobCard) IsTerminal() bool {
	return TerminalStatus(j.Status)
}

// PartRequestStatus enumerates part request decisions.
type PartRequestStatus string

const (
	PartPending  PartRequestStatus = "PENDING"
	PartApproved PartRequestStatus = "APPROVED"
	PartRejected PartRequestStatus = "REJECTED"
)

// PartRequest is a technician's diagnosis-time request for a part. The
// unit price is snapshotted when the request is made; later catalogue
// price changes do not alter it.
type PartRequest struct {
	ID             int64             `json:"id"`
	JobID          int64             `json:"job_id"`
	BranchID       int64             `json:"branch_id"`
	ItemID         int64             `json:"item_id,omitempty"`
	Name           string            `json:"name"`
	Quantity       int64             `json:"quantity"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	WarrantyDays   int               `json:"warranty_days"`
	Status         PartRequestStatus `json:"status"`
	RequestedByID  int64             `json:"requested_by_id"`
	DecidedByID    int64             `json:"decided_by_id,omitempty"`
	DecisionReason string            `json:"decision_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
}

// HistoryEntry is an immutable record of one status transition.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    int64     `json:"actor_id"`
	Note       string    `json:"note,omitempty"`
	IsOverride bool      `json:"is_override"`
	At         time.Time `json:"at"`
}

// Note is free-form commentary on a job. Appendable even after the job
// reaches a terminal status.
type Note struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// DevicePasswords is the decrypted pair returned by AccessDevicePassword.
type DevicePasswords struct {
	DevicePassword string `json:"device_password"`
	BIOSPassword   string `json:"bios_password"`
}

// CreateJobInput collects intake fields.
type CreateJobInput struct {
	BranchID          int64
	CustomerID        int64
	DeviceType        string
	Brand             string
	Model             string
	SerialNumber      string
	Complaint         string
	PhysicalCondition string
	Accessories       []string
	DevicePassword    string
	BIOSPassword      string
	EstimatedCost     decimal.Decimal
	IsUrgent          bool
	IsWarranty        bool
}

// PartRequestInput collects a part request. UnitPrice is used only when
// the part is not catalogued (ItemID zero); otherwise the live selling
// price is snapshotted.
type PartRequestInput struct {
	JobID        int64
	ItemID       int64
	Name         string
	Quantity     int64
	UnitPrice    decimal.Decimal
	WarrantyDays int
}

// JobFilters narrows job listings.
type JobFilters struct {
	BranchIDs    []int64
	Status       Status
	TechnicianID int64
	CustomerID   int64
	Search       string
	IsUrgent     bool
	Page         int
	PerPage      int
}

var (
	// ErrInvalidTransition indicates a target outside the allowed set.
	ErrInvalidTransition = errors.New("jobcards: invalid status transition")
	// ErrJobReadOnly indicates a mutation on a job in a terminal status.
	ErrJobReadOnly = errors.New("jobcards: job is read-only")
	// ErrDeliveryNotVerified indicates a failed delivery credential check.
	ErrDeliveryNotVerified = errors.New("jobcards: delivery not verified")
	// ErrPartAlreadyDecided indicates a second decision on a part request.
	ErrPartAlreadyDecided = errors.New("jobcards: part request already decided")
)
