package jobcards

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fixdesk/fixdesk/internal/audit"
	"github.com/fixdesk/fixdesk/internal/inventory"
	"github.com/fixdesk/fixdesk/internal/masterdata/branches"
	"github.com/fixdesk/fixdesk/internal/masterdata/customers"
	"github.com/fixdesk/fixdesk/internal/notify"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/secrets"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJob(ctx context.Context, id int64, branchIDs []int64) (JobCard, error)
	ListJobs(ctx context.Context, filters JobFilters) ([]JobCard, int, error)
	ListHistory(ctx context.Context, jobID int64) ([]HistoryEntry, error)
	ListParts(ctx context.Context, jobID int64) ([]PartRequest, error)
	ListNotes(ctx context.Context, jobID int64) ([]Note, error)
	InsertNote(ctx context.Context, note Note) (Note, error)
}

// TxRepository exposes the operations available inside a job transaction.
type TxRepository interface {
	AllocateJobNumber(ctx context.Context, branchID int64) (int64, error)
	InsertJob(ctx context.Context, job JobCard) (JobCard, error)
	GetJobForUpdate(ctx context.Context, jobID int64) (JobCard, error)
	UpdateStatus(ctx context.Context, job JobCard) error
	UpdateTechnician(ctx context.Context, jobID, technicianID int64) error
	UpdateDiagnosis(ctx context.Context, jobID int64, notes string, estimate decimal.Decimal) error
	InsertHistory(ctx context.Context, entry HistoryEntry) error
	InsertPartRequest(ctx context.Context, pr PartRequest) (PartRequest, error)
	GetPartRequestForUpdate(ctx context.Context, id int64) (PartRequest, error)
	UpdatePartRequest(ctx context.Context, pr PartRequest) error
}

// BranchDirectory resolves branch masterdata for numbering and channels.
type BranchDirectory interface {
	Get(ctx context.Context, id int64) (branches.Branch, error)
}

// CustomerDirectory resolves customers for notifications.
type CustomerDirectory interface {
	Get(ctx context.Context, id int64) (customers.Customer, error)
}

// PartsInventory is the stock ledger seam used on part approval.
type PartsInventory interface {
	GetItem(ctx context.Context, p rbac.Principal, id int64) (inventory.Item, error)
	DeductForJob(ctx context.Context, p rbac.Principal, itemID, quantity, jobID int64) (inventory.StockAdjustment, error)
}

// DeliveryCredentials issues and verifies pickup codes.
type DeliveryCredentials interface {
	Issue(ctx context.Context, jobID int64) (string, error)
	Verify(ctx context.Context, jobID int64, code string) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
	RecordPasswordAccess(ctx context.Context, access audit.PasswordAccess) error
}

// Service is the repair workflow engine.
type Service struct {
	repo      RepositoryPort
	guard     *scope.Guard
	branches  BranchDirectory
	customers CustomerDirectory
	parts     PartsInventory
	creds     DeliveryCredentials
	audit     AuditPort
	box       *secrets.Box
	dispatch  notify.Dispatcher
}

// NewService builds Service.
func NewService(repo RepositoryPort, guard *scope.Guard, branchDir BranchDirectory,
	customerDir CustomerDirectory, parts PartsInventory, creds DeliveryCredentials,
	auditor AuditPort, box *secrets.Box, dispatch notify.Dispatcher) *Service {
	if dispatch == nil {
		dispatch = notify.NopDispatcher{}
	}
	return &Service{
		repo: repo, guard: guard, branches: branchDir, customers: customerDir,
		parts: parts, creds: creds, audit: auditor, box: box, dispatch: dispatch,
	}
}

// CreateJob registers a device intake. The job number is allocated from the
// branch counter in the same transaction as the insert, so concurrent
// intakes never duplicate or reorder numbers.
func (s *Service) CreateJob(ctx context.Context, p rbac.Principal, input CreateJobInput) (JobCard, error) {
	if !p.Can(rbac.CapJobsCreate) {
		return JobCard{}, shared.ErrUnauthorized
	}
	if err := s.guard.Authorize(ctx, p, input.BranchID); err != nil {
		return JobCard{}, err
	}
	if err := validateCreate(input); err != nil {
		return JobCard{}, err
	}
	customer, err := s.customers.Get(ctx, input.CustomerID)
	if err != nil {
		return JobCard{}, err
	}
	if customer.BranchID != input.BranchID {
		return JobCard{}, shared.ErrNotFound
	}
	branch, err := s.branches.Get(ctx, input.BranchID)
	if err != nil {
		return JobCard{}, err
	}

	devicePwd, err := s.sealPassword(input.DevicePassword)
	if err != nil {
		return JobCard{}, err
	}
	biosPwd, err := s.sealPassword(input.BIOSPassword)
	if err != nil {
		return JobCard{}, err
	}

	now := time.Now().UTC()
	job := JobCard{
		OrganizationID:    p.OrganizationID,
		BranchID:          input.BranchID,
		CustomerID:        input.CustomerID,
		Status:            StatusReceived,
		DeviceType:        input.DeviceType,
		Brand:             input.Brand,
		Model:             input.Model,
		SerialNumber:      input.SerialNumber,
		Complaint:         input.Complaint,
		PhysicalCondition: input.PhysicalCondition,
		Accessories:       input.Accessories,
		devicePasswordEnc: devicePwd,
		biosPasswordEnc:   biosPwd,
		EstimatedCost:     input.EstimatedCost,
		IsUrgent:          input.IsUrgent,
		IsWarranty:        input.IsWarranty,
		ReceivedByID:      p.UserID,
	}

	var created JobCard
	err = shared.WithRetry(ctx, shared.DefaultRetryAttempts, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			seq, err := tx.AllocateJobNumber(ctx, input.BranchID)
			if err != nil {
				return err
			}
			job.JobNumber = branches.FormatDocNumber(branch.JobPrefix, branch.Code, seq, now)
			created, err = tx.InsertJob(ctx, job)
			if err != nil {
				return err
			}
			return tx.InsertHistory(ctx, HistoryEntry{
				JobID:    created.ID,
				ToStatus: StatusReceived,
				ActorID:  p.UserID,
			})
		})
	})
	if err != nil {
		return JobCard{}, err
	}

	s.recordAudit(ctx, p, created.BranchID, "job.created", created.ID, map[string]any{
		"job_number": created.JobNumber, "customer_id": created.CustomerID,
	})
	s.notifyCustomer(ctx, branch, customer, notify.EventJobCreated, map[string]string{
		"job_number": created.JobNumber,
	})
	return created, nil
}

// RequestTransition moves a job to targetStatus. A target outside the
// allowed set fails with ErrInvalidTransition unless the principal holds
// the override capability, in which case the history entry carries
// is_override. This is the only path that ever changes a job status.
func (s *Service) RequestTransition(ctx context.Context, p rbac.Principal, jobID int64, target Status, note string) (JobCard, error) {
	if !p.Can(rbac.CapJobsTransition) {
		return JobCard{}, shared.ErrUnauthorized
	}
	if !ValidStatus(target) {
		return JobCard{}, shared.NewValidationError("status", "unknown status")
	}
	job, err := s.applyTransition(ctx, p, jobID, target, note)
	if err != nil {
		return JobCard{}, err
	}

	if target == StatusReadyForDelivery && s.creds != nil {
		s.issueDeliveryCode(ctx, job)
	}
	s.notifyStatusChange(ctx, job)
	return job, nil
}

// AssignTechnician sets or replaces the technician on an open job.
func (s *Service) AssignTechnician(ctx context.Context, p rbac.Principal, jobID, technicianID int64) (JobCard, error) {
	if !p.Can(rbac.CapJobsAssign) {
		return JobCard{}, shared.ErrUnauthorized
	}
	if technicianID <= 0 {
		return JobCard{}, shared.NewValidationError("technician_id", "is required")
	}
	var job JobCard
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, locked.BranchID); authErr != nil {
			return authErr
		}
		if locked.IsTerminal() {
			return ErrJobReadOnly
		}
		if err := tx.UpdateTechnician(ctx, locked.ID, technicianID); err != nil {
			return err
		}
		locked.TechnicianID = technicianID
		job = locked
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}
	s.recordAudit(ctx, p, job.BranchID, "job.technician_assigned", job.ID, map[string]any{
		"technician_id": technicianID,
	})
	s.notifyJob(ctx, job, notify.EventTechnicianAssigned, map[string]string{
		"job_number": job.JobNumber,
	})
	return job, nil
}

// RecordDiagnosis captures the technician's findings and estimate.
func (s *Service) RecordDiagnosis(ctx context.Context, p rbac.Principal, jobID int64, notes string, estimate decimal.Decimal) (JobCard, error) {
	if !p.Can(rbac.CapJobsTransition) {
		return JobCard{}, shared.ErrUnauthorized
	}
	if strings.TrimSpace(notes) == "" {
		return JobCard{}, shared.NewValidationError("diagnosis_notes", "is required")
	}
	if estimate.IsNegative() {
		return JobCard{}, shared.NewValidationError("estimated_cost", "must not be negative")
	}
	var job JobCard
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, locked.BranchID); authErr != nil {
			return authErr
		}
		if locked.IsTerminal() {
			return ErrJobReadOnly
		}
		if err := tx.UpdateDiagnosis(ctx, locked.ID, notes, estimate); err != nil {
			return err
		}
		locked.DiagnosisNotes = notes
		locked.EstimatedCost = estimate
		job = locked
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}
	s.recordAudit(ctx, p, job.BranchID, "job.diagnosis_recorded", job.ID, nil)
	return job, nil
}

// Deliver hands the device back. The pickup code is checked before the
// status moves; a wrong or expired code fails with ErrDeliveryNotVerified
// and leaves the job in READY_FOR_DELIVERY.
func (s *Service) Deliver(ctx context.Context, p rbac.Principal, jobID int64, code string) (JobCard, error) {
	if !p.Can(rbac.CapJobsDeliver) {
		return JobCard{}, shared.ErrUnauthorized
	}
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return JobCard{}, err
	}
	job, err := s.repo.GetJob(ctx, jobID, branchIDs)
	if err != nil {
		return JobCard{}, err
	}
	if job.Status != StatusReadyForDelivery {
		return JobCard{}, ErrInvalidTransition
	}
	ok, err := s.creds.Verify(ctx, jobID, code)
	if err != nil || !ok {
		return JobCard{}, ErrDeliveryNotVerified
	}

	delivered, err := s.applyTransition(ctx, p, jobID, StatusDelivered, "delivered to customer")
	if err != nil {
		return JobCard{}, err
	}
	s.notifyStatusChange(ctx, delivered)
	return delivered, nil
}

// AccessDevicePassword returns the decrypted device passwords. The access
// record is written before decryption; if it cannot be written the value
// is not released. There is no other route to the plaintext.
func (s *Service) AccessDevicePassword(ctx context.Context, p rbac.Principal, jobID int64, reason string) (DevicePasswords, error) {
	if !p.Can(rbac.CapJobsPasswordAccess) {
		return DevicePasswords{}, shared.ErrUnauthorized
	}
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return DevicePasswords{}, err
	}
	job, err := s.repo.GetJob(ctx, jobID, branchIDs)
	if err != nil {
		return DevicePasswords{}, err
	}
	if err := s.audit.RecordPasswordAccess(ctx, audit.PasswordAccess{
		JobID:    job.ID,
		BranchID: job.BranchID,
		ActorID:  p.UserID,
		Reason:   reason,
	}); err != nil {
		return DevicePasswords{}, err
	}
	device, err := s.openPassword(job.devicePasswordEnc)
	if err != nil {
		return DevicePasswords{}, err
	}
	bios, err := s.openPassword(job.biosPasswordEnc)
	if err != nil {
		return DevicePasswords{}, err
	}
	return DevicePasswords{DevicePassword: device, BIOSPassword: bios}, nil
}

// RequestPart records a pending part requirement with a price snapshot.
func (s *Service) RequestPart(ctx context.Context, p rbac.Principal, input PartRequestInput) (PartRequest, error) {
	if !p.Can(rbac.CapPartsRequest) {
		return PartRequest{}, shared.ErrUnauthorized
	}
	if input.Quantity <= 0 {
		return PartRequest{}, shared.NewValidationError("quantity", "must be positive")
	}
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return PartRequest{}, err
	}
	job, err := s.repo.GetJob(ctx, input.JobID, branchIDs)
	if err != nil {
		return PartRequest{}, err
	}
	if job.IsTerminal() {
		return PartRequest{}, ErrJobReadOnly
	}

	name := strings.TrimSpace(input.Name)
	unitPrice := input.UnitPrice
	if input.ItemID > 0 {
		item, err := s.parts.GetItem(ctx, p, input.ItemID)
		if err != nil {
			return PartRequest{}, err
		}
		if item.BranchID != job.BranchID {
			return PartRequest{}, shared.ErrNotFound
		}
		// Snapshot the selling price now; later catalogue edits must not
		// move an already-requested part.
		unitPrice = item.SellingPrice
		if name == "" {
			name = item.Name
		}
	}
	if name == "" {
		return PartRequest{}, shared.NewValidationError("name", "is required")
	}
	if unitPrice.IsNegative() {
		return PartRequest{}, shared.NewValidationError("unit_price", "must not be negative")
	}

	var created PartRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err = tx.InsertPartRequest(ctx, PartRequest{
			JobID:         job.ID,
			BranchID:      job.BranchID,
			ItemID:        input.ItemID,
			Name:          name,
			Quantity:      input.Quantity,
			UnitPrice:     unitPrice,
			WarrantyDays:  input.WarrantyDays,
			Status:        PartPending,
			RequestedByID: p.UserID,
		})
		return err
	})
	if err != nil {
		return PartRequest{}, err
	}
	s.recordAudit(ctx, p, job.BranchID, "part.requested", job.ID, map[string]any{
		"part": created.Name, "quantity": created.Quantity,
	})
	return created, nil
}

// ApprovePart consumes stock for a pending request. The approval and the
// deduction commit together: if the deduction fails the request stays
// pending and stock is untouched.
func (s *Service) ApprovePart(ctx context.Context, p rbac.Principal, partID int64) (PartRequest, error) {
	if !p.Can(rbac.CapPartsApprove) {
		return PartRequest{}, shared.ErrUnauthorized
	}
	var approved PartRequest
	err := shared.WithRetry(ctx, shared.DefaultRetryAttempts, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			pr, err := tx.GetPartRequestForUpdate(ctx, partID)
			if err != nil {
				return err
			}
			if authErr := s.guard.Authorize(ctx, p, pr.BranchID); authErr != nil {
				return authErr
			}
			if pr.Status != PartPending {
				return ErrPartAlreadyDecided
			}
			job, err := tx.GetJobForUpdate(ctx, pr.JobID)
			if err != nil {
				return err
			}
			if job.IsTerminal() {
				return ErrJobReadOnly
			}
			now := time.Now().UTC()
			pr.Status = PartApproved
			pr.DecidedByID = p.UserID
			pr.DecidedAt = &now
			if err := tx.UpdatePartRequest(ctx, pr); err != nil {
				return err
			}
			approved = pr
			if pr.ItemID > 0 {
				// Last step in the callback: a failed deduction rolls the
				// approval back with it.
				if _, err := s.parts.DeductForJob(ctx, p, pr.ItemID, pr.Quantity, pr.JobID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return PartRequest{}, err
	}
	s.recordAudit(ctx, p, approved.BranchID, "part.approved", approved.JobID, map[string]any{
		"part": approved.Name, "quantity": approved.Quantity,
	})
	return approved, nil
}

// RejectPart declines a pending request. Stock is untouched.
func (s *Service) RejectPart(ctx context.Context, p rbac.Principal, partID int64, reason string) (PartRequest, error) {
	if !p.Can(rbac.CapPartsApprove) {
		return PartRequest{}, shared.ErrUnauthorized
	}
	if strings.TrimSpace(reason) == "" {
		return PartRequest{}, shared.NewValidationError("reason", "is required")
	}
	var rejected PartRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.GetPartRequestForUpdate(ctx, partID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, pr.BranchID); authErr != nil {
			return authErr
		}
		if pr.Status != PartPending {
			return ErrPartAlreadyDecided
		}
		now := time.Now().UTC()
		pr.Status = PartRejected
		pr.DecidedByID = p.UserID
		pr.DecisionReason = reason
		pr.DecidedAt = &now
		if err := tx.UpdatePartRequest(ctx, pr); err != nil {
			return err
		}
		rejected = pr
		return nil
	})
	if err != nil {
		return PartRequest{}, err
	}
	s.recordAudit(ctx, p, rejected.BranchID, "part.rejected", rejected.JobID, map[string]any{
		"part": rejected.Name, "reason": reason,
	})
	return rejected, nil
}

// AddNote appends commentary. Allowed even on terminal jobs; notes are
// metadata, not state.
func (s *Service) AddNote(ctx context.Context, p rbac.Principal, jobID int64, body string) (Note, error) {
	if strings.TrimSpace(body) == "" {
		return Note{}, shared.NewValidationError("body", "is required")
	}
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return Note{}, err
	}
	job, err := s.repo.GetJob(ctx, jobID, branchIDs)
	if err != nil {
		return Note{}, err
	}
	note, err := s.repo.InsertNote(ctx, Note{JobID: job.ID, AuthorID: p.UserID, Body: body})
	if err != nil {
		return Note{}, err
	}
	s.recordAudit(ctx, p, job.BranchID, "job.note_added", job.ID, nil)
	return note, nil
}

// GetJob fetches one job inside the principal's scope.
func (s *Service) GetJob(ctx context.Context, p rbac.Principal, jobID int64) (JobCard, error) {
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return JobCard{}, err
	}
	return s.repo.GetJob(ctx, jobID, branchIDs)
}

// ListJobs returns jobs in the principal's visible branches.
func (s *Service) ListJobs(ctx context.Context, p rbac.Principal, filters JobFilters) ([]JobCard, shared.Pagination, error) {
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
	jobs, total, err := s.repo.ListJobs(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return jobs, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// History returns the transition trail for a job in scope.
func (s *Service) History(ctx context.Context, p rbac.Principal, jobID int64) ([]HistoryEntry, error) {
	if _, err := s.GetJob(ctx, p, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, jobID)
}

// Parts returns the part requests for a job in scope.
func (s *Service) Parts(ctx context.Context, p rbac.Principal, jobID int64) ([]PartRequest, error) {
	if _, err := s.GetJob(ctx, p, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListParts(ctx, jobID)
}

// Notes returns the note thread for a job in scope.
func (s *Service) Notes(ctx context.Context, p rbac.Principal, jobID int64) ([]Note, error) {
	if _, err := s.GetJob(ctx, p, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, jobID)
}

func (s *Service) applyTransition(ctx context.Context, p rbac.Principal, jobID int64, target Status, note string) (JobCard, error) {
	var job JobCard
	var wasOverride bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if authErr := s.guard.Authorize(ctx, p, locked.BranchID); authErr != nil {
			return authErr
		}
		if locked.IsTerminal() {
			return ErrJobReadOnly
		}
		override := false
		if !CanTransition(locked.Status, target) {
			if !p.Can(rbac.CapJobsOverride) {
				return ErrInvalidTransition
			}
			override = true
		}
		from := locked.Status
		now := time.Now().UTC()
		locked.Status = target
		switch target {
		case StatusReadyForDelivery:
			locked.CompletedAt = &now
		case StatusDelivered:
			locked.DeliveredAt = &now
		}
		if err := tx.UpdateStatus(ctx, locked); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, HistoryEntry{
			JobID:      locked.ID,
			FromStatus: from,
			ToStatus:   target,
			ActorID:    p.UserID,
			Note:       note,
			IsOverride: override,
			At:         now,
		}); err != nil {
			return err
		}
		job = locked
		wasOverride = override
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}
	s.recordAudit(ctx, p, job.BranchID, "job.transitioned", job.ID, map[string]any{
		"to": string(target), "override": wasOverride,
	})
	return job, nil
}

func (s *Service) issueDeliveryCode(ctx context.Context, job JobCard) {
	code, err := s.creds.Issue(ctx, job.ID)
	if err != nil {
		return
	}
	s.notifyJob(ctx, job, notify.EventDeliveryOTP, map[string]string{
		"job_number": job.JobNumber,
		"otp":        code,
	})
}

func (s *Service) notifyStatusChange(ctx context.Context, job JobCard) {
	s.notifyJob(ctx, job, notify.EventJobStatusChanged, map[string]string{
		"job_number": job.JobNumber,
		"status":     string(job.Status),
	})
}

func (s *Service) notifyJob(ctx context.Context, job JobCard, eventType string, data map[string]string) {
	branch, err := s.branches.Get(ctx, job.BranchID)
	if err != nil {
		return
	}
	customer, err := s.customers.Get(ctx, job.CustomerID)
	if err != nil {
		return
	}
	s.notifyCustomer(ctx, branch, customer, eventType, data)
}

func (s *Service) notifyCustomer(ctx context.Context, branch branches.Branch, customer customers.Customer, eventType string, data map[string]string) {
	s.dispatch.Dispatch(ctx, notify.Event{
		Type:     eventType,
		BranchID: branch.ID,
		Recipient: notify.Recipient{
			Mobile:   customer.Mobile,
			SMS:      branch.SMSEnabled && customer.SMSEnabled,
			WhatsApp: branch.WhatsAppEnabled,
		},
		Data: data,
	})
}

func (s *Service) sealPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if s.box == nil {
		return "", errors.New("jobcards: password encryption not configured")
	}
	return s.box.Seal(plaintext)
}

func (s *Service) openPassword(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if s.box == nil {
		return "", errors.New("jobcards: password encryption not configured")
	}
	return s.box.Open(sealed)
}

func (s *Service) recordAudit(ctx context.Context, p rbac.Principal, branchID int64, action string, jobID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		BranchID: branchID,
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "job_card",
		EntityID: strconv.FormatInt(jobID, 10),
		Meta:     meta,
	})
}

func validateCreate(input CreateJobInput) error {
	if input.CustomerID <= 0 {
		return shared.NewValidationError("customer_id", "is required")
	}
	if strings.TrimSpace(input.DeviceType) == "" {
		return shared.NewValidationError("device_type", "is required")
	}
	if strings.TrimSpace(input.Complaint) == "" {
		return shared.NewValidationError("complaint", "is required")
	}
	if input.EstimatedCost.IsNegative() {
		return shared.NewValidationError("estimated_cost", "must not be negative")
	}
	return nil
}
