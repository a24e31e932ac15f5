package jobcards

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

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

const testBoxKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type memoryRepo struct {
	mu      sync.Mutex
	jobs    map[int64]JobCard
	history []HistoryEntry
	parts   map[int64]PartRequest
	notes   []Note
	counter map[int64]int64
	nextJob int64
	nextPR  int64

	// stock joins the transaction the way a part deduction shares the
	// approval's database transaction: it commits and rolls back with it.
	stock *fakeInventory
	// commitErrs are popped one per successful callback and returned as
	// commit failures, after rolling everything back.
	commitErrs []error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		jobs:    make(map[int64]JobCard),
		parts:   make(map[int64]PartRequest),
		counter: make(map[int64]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prevJobs := make(map[int64]JobCard, len(r.jobs))
	for k, v := range r.jobs {
		prevJobs[k] = v
	}
	prevParts := make(map[int64]PartRequest, len(r.parts))
	for k, v := range r.parts {
		prevParts[k] = v
	}
	prevCounter := make(map[int64]int64, len(r.counter))
	for k, v := range r.counter {
		prevCounter[k] = v
	}
	prevHistory := r.history
	prevNextJob, prevNextPR := r.nextJob, r.nextPR
	var prevStock map[int64]inventory.Item
	if r.stock != nil {
		prevStock = r.stock.snapshot()
	}
	rollback := func() {
		r.jobs = prevJobs
		r.parts = prevParts
		r.counter = prevCounter
		r.history = prevHistory
		r.nextJob, r.nextPR = prevNextJob, prevNextPR
		if r.stock != nil {
			r.stock.restore(prevStock)
		}
	}

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		rollback()
		return err
	}
	if len(r.commitErrs) > 0 {
		err := r.commitErrs[0]
		r.commitErrs = r.commitErrs[1:]
		if err != nil {
			rollback()
			return err
		}
	}
	return nil
}

func (r *memoryRepo) GetJob(_ context.Context, id int64, branchIDs []int64) (JobCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return JobCard{}, shared.ErrNotFound
	}
	for _, b := range branchIDs {
		if b == job.BranchID {
			return job, nil
		}
	}
	return JobCard{}, shared.ErrNotFound
}

func (r *memoryRepo) ListJobs(_ context.Context, filters JobFilters) ([]JobCard, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JobCard
	for _, job := range r.jobs {
		for _, b := range filters.BranchIDs {
			if b == job.BranchID {
				out = append(out, job)
				break
			}
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListHistory(_ context.Context, jobID int64) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HistoryEntry
	for _, h := range r.history {
		if h.JobID == jobID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListParts(_ context.Context, jobID int64) ([]PartRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PartRequest
	for _, p := range r.parts {
		if p.JobID == jobID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListNotes(_ context.Context, jobID int64) ([]Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Note
	for _, n := range r.notes {
		if n.JobID == jobID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertNote(_ context.Context, note Note) (Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	note.ID = int64(len(r.notes) + 1)
	r.notes = append(r.notes, note)
	return note, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) AllocateJobNumber(_ context.Context, branchID int64) (int64, error) {
	tx.repo.counter[branchID]++
	return tx.repo.counter[branchID], nil
}

func (tx *memoryTx) InsertJob(_ context.Context, job JobCard) (JobCard, error) {
	tx.repo.nextJob++
	job.ID = tx.repo.nextJob
	tx.repo.jobs[job.ID] = job
	return job, nil
}

func (tx *memoryTx) GetJobForUpdate(_ context.Context, jobID int64) (JobCard, error) {
	job, ok := tx.repo.jobs[jobID]
	if !ok {
		return JobCard{}, shared.ErrNotFound
	}
	return job, nil
}

func (tx *memoryTx) UpdateStatus(_ context.Context, job JobCard) error {
	stored := tx.repo.jobs[job.ID]
	stored.Status = job.Status
	stored.CompletedAt = job.CompletedAt
	stored.DeliveredAt = job.DeliveredAt
	tx.repo.jobs[job.ID] = stored
	return nil
}

func (tx *memoryTx) UpdateTechnician(_ context.Context, jobID, technicianID int64) error {
	job := tx.repo.jobs[jobID]
	job.TechnicianID = technicianID
	tx.repo.jobs[jobID] = job
	return nil
}

func (tx *memoryTx) UpdateDiagnosis(_ context.Context, jobID int64, notes string, estimate decimal.Decimal) error {
	job := tx.repo.jobs[jobID]
	job.DiagnosisNotes = notes
	job.EstimatedCost = estimate
	tx.repo.jobs[jobID] = job
	return nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, entry HistoryEntry) error {
	entry.ID = int64(len(tx.repo.history) + 1)
	tx.repo.history = append(tx.repo.history, entry)
	return nil
}

func (tx *memoryTx) InsertPartRequest(_ context.Context, pr PartRequest) (PartRequest, error) {
	tx.repo.nextPR++
	pr.ID = tx.repo.nextPR
	tx.repo.parts[pr.ID] = pr
	return pr, nil
}

func (tx *memoryTx) GetPartRequestForUpdate(_ context.Context, id int64) (PartRequest, error) {
	pr, ok := tx.repo.parts[id]
	if !ok {
		return PartRequest{}, shared.ErrNotFound
	}
	return pr, nil
}

func (tx *memoryTx) UpdatePartRequest(_ context.Context, pr PartRequest) error {
	tx.repo.parts[pr.ID] = pr
	return nil
}

type staticBranches map[int64]branches.Branch

func (d staticBranches) Get(_ context.Context, id int64) (branches.Branch, error) {
	b, ok := d[id]
	if !ok {
		return branches.Branch{}, shared.ErrNotFound
	}
	return b, nil
}

type staticCustomers map[int64]customers.Customer

func (d staticCustomers) Get(_ context.Context, id int64) (customers.Customer, error) {
	c, ok := d[id]
	if !ok {
		return customers.Customer{}, shared.ErrNotFound
	}
	return c, nil
}

type fakeInventory struct {
	mu      sync.Mutex
	items   map[int64]inventory.Item
	deducts int
}

func (f *fakeInventory) snapshot() map[int64]inventory.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make(map[int64]inventory.Item, len(f.items))
	for k, v := range f.items {
		items[k] = v
	}
	return items
}

func (f *fakeInventory) restore(items map[int64]inventory.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

func (f *fakeInventory) GetItem(_ context.Context, _ rbac.Principal, id int64) (inventory.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return inventory.Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (f *fakeInventory) DeductForJob(_ context.Context, _ rbac.Principal, itemID, quantity, jobID int64) (inventory.StockAdjustment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deducts++
	item := f.items[itemID]
	if quantity > item.Quantity {
		return inventory.StockAdjustment{}, inventory.ErrInsufficientStock
	}
	item.Quantity -= quantity
	f.items[itemID] = item
	return inventory.StockAdjustment{ItemID: itemID, Quantity: quantity, JobID: jobID}, nil
}

type fakeCreds struct {
	issued map[int64]string
}

func (f *fakeCreds) Issue(_ context.Context, jobID int64) (string, error) {
	if f.issued == nil {
		f.issued = make(map[int64]string)
	}
	f.issued[jobID] = "481516"
	return "481516", nil
}

func (f *fakeCreds) Verify(_ context.Context, jobID int64, code string) (bool, error) {
	stored, ok := f.issued[jobID]
	if !ok {
		return false, nil
	}
	if stored != code {
		return false, nil
	}
	delete(f.issued, jobID)
	return true, nil
}

type memoryAudit struct {
	mu       sync.Mutex
	entries  []audit.Entry
	accesses []audit.PasswordAccess
}

func (a *memoryAudit) Record(_ context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAudit) RecordPasswordAccess(_ context.Context, access audit.PasswordAccess) error {
	if access.Reason == "" {
		return audit.ErrReasonRequired
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accesses = append(a.accesses, access)
	return nil
}

type staticDirectory map[int64][]int64

func (d staticDirectory) ListActiveIDsByOrganization(_ context.Context, orgID int64) ([]int64, error) {
	return d[orgID], nil
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	stock    *fakeInventory
	creds    *fakeCreds
	auditor  *memoryAudit
	dispatch *notify.MemoryDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	guard := scope.NewGuard(staticDirectory{1: {10, 11}})
	branchDir := staticBranches{
		10: {ID: 10, Code: "BLR", JobPrefix: "JC", InvoicePrefix: "INV", StateCode: "29", SMSEnabled: true},
		11: {ID: 11, Code: "MUM", JobPrefix: "JC", InvoicePrefix: "INV", StateCode: "27"},
	}
	customerDir := staticCustomers{
		100: {ID: 100, BranchID: 10, FirstName: "Asha", Mobile: "9876543210", SMSEnabled: true},
	}
	stock := &fakeInventory{items: map[int64]inventory.Item{
		7: {ID: 7, BranchID: 10, Name: "iPhone 13 display assembly", Quantity: 5,
			SellingPrice: decimal.NewFromInt(8999), IsActive: true},
	}}
	creds := &fakeCreds{}
	auditor := &memoryAudit{}
	dispatch := notify.NewMemoryDispatcher()
	box, err := secrets.NewBox(testBoxKey)
	require.NoError(t, err)
	repo.stock = stock
	svc := NewService(repo, guard, branchDir, customerDir, stock, creds, auditor, box, dispatch)
	return &fixture{svc: svc, repo: repo, stock: stock, creds: creds, auditor: auditor, dispatch: dispatch}
}

func receptionist() rbac.Principal {
	return rbac.NewPrincipal(2, 1, rbac.RoleReceptionist, []int64{10})
}

func manager() rbac.Principal {
	return rbac.NewPrincipal(3, 1, rbac.RoleManager, []int64{10})
}

func technician() rbac.Principal {
	return rbac.NewPrincipal(4, 1, rbac.RoleTechnician, []int64{10})
}

func (f *fixture) createJob(t *testing.T) JobCard {
	t.Helper()
	job, err := f.svc.CreateJob(context.Background(), receptionist(), CreateJobInput{
		BranchID:       10,
		CustomerID:     100,
		DeviceType:     "LAPTOP",
		Brand:          "Lenovo",
		Model:          "ThinkPad T14",
		SerialNumber:   "PF-3XK19",
		Complaint:      "does not power on",
		DevicePassword: "hunter2",
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) advance(t *testing.T, jobID int64, targets ...Status) JobCard {
	t.Helper()
	var job JobCard
	var err error
	for _, target := range targets {
		job, err = f.svc.RequestTransition(context.Background(), manager(), jobID, target, "")
		require.NoError(t, err)
	}
	return job
}

func TestCreateJobAllocatesSequentialNumbers(t *testing.T) {
	f := newFixture(t)

	first := f.createJob(t)
	second := f.createJob(t)

	require.Equal(t, StatusReceived, first.Status)
	require.Regexp(t, `^JC/\d{4}-\d{2}/BLR/00001$`, first.JobNumber)
	require.Regexp(t, `/00002$`, second.JobNumber)

	history, err := f.svc.History(context.Background(), manager(), first.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, StatusReceived, history[0].ToStatus)

	require.Len(t, f.dispatch.OfType(notify.EventJobCreated), 2)
}

func TestDisallowedTransitionFailsAndChangesNothing(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	_, err := f.svc.RequestTransition(context.Background(), receptionist(), job.ID, StatusRepairInProgress, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.svc.GetJob(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, stored.Status)

	history, err := f.svc.History(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestOverrideTransitionFlagsHistory(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	updated, err := f.svc.RequestTransition(context.Background(), manager(), job.ID, StatusRepairInProgress, "skip the queue")
	require.NoError(t, err)
	require.Equal(t, StatusRepairInProgress, updated.Status)

	history, err := f.svc.History(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[1].IsOverride)

	// A transition inside the table is not flagged.
	updated, err = f.svc.RequestTransition(context.Background(), manager(), job.ID, StatusReadyForDelivery, "")
	require.NoError(t, err)
	history, err = f.svc.History(context.Background(), manager(), updated.ID)
	require.NoError(t, err)
	require.False(t, history[2].IsOverride)
}

func TestTerminalJobIsReadOnlyExceptNotes(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.advance(t, job.ID, StatusDiagnosis, StatusEstimateShared, StatusRejected)

	_, err := f.svc.RequestTransition(context.Background(), manager(), job.ID, StatusDiagnosis, "")
	require.ErrorIs(t, err, ErrJobReadOnly)

	_, err = f.svc.AssignTechnician(context.Background(), manager(), job.ID, 4)
	require.ErrorIs(t, err, ErrJobReadOnly)

	note, err := f.svc.AddNote(context.Background(), manager(), job.ID, "customer informed of rejection")
	require.NoError(t, err)
	require.NotZero(t, note.ID)
}

func TestDeliverRequiresValidCode(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)
	f.advance(t, job.ID, StatusDiagnosis, StatusEstimateShared, StatusApproved,
		StatusRepairInProgress, StatusReadyForDelivery)

	// Reaching READY_FOR_DELIVERY issued a pickup code.
	require.Len(t, f.dispatch.OfType(notify.EventDeliveryOTP), 1)

	_, err := f.svc.Deliver(context.Background(), receptionist(), job.ID, "000000")
	require.ErrorIs(t, err, ErrDeliveryNotVerified)

	stored, err := f.svc.GetJob(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReadyForDelivery, stored.Status)

	delivered, err := f.svc.Deliver(context.Background(), receptionist(), job.ID, "481516")
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
}

func TestDeliverRejectedOutsideReadyState(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	_, err := f.svc.Deliver(context.Background(), receptionist(), job.ID, "481516")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAccessDevicePasswordLogsBeforeReturning(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	passwords, err := f.svc.AccessDevicePassword(context.Background(), technician(), job.ID, "repair login needed")
	require.NoError(t, err)
	require.Equal(t, "hunter2", passwords.DevicePassword)
	require.Empty(t, passwords.BIOSPassword)
	require.Len(t, f.auditor.accesses, 1)
	require.Equal(t, "repair login needed", f.auditor.accesses[0].Reason)

	_, err = f.svc.AccessDevicePassword(context.Background(), technician(), job.ID, "")
	require.ErrorIs(t, err, audit.ErrReasonRequired)
	require.Len(t, f.auditor.accesses, 1)
}

func TestAccessDevicePasswordRequiresCapability(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	_, err := f.svc.AccessDevicePassword(context.Background(), receptionist(), job.ID, "curiosity")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRequestPartSnapshotsCataloguePrice(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	part, err := f.svc.RequestPart(context.Background(), technician(), PartRequestInput{
		JobID: job.ID, ItemID: 7, Quantity: 1,
	})
	require.NoError(t, err)
	require.Equal(t, PartPending, part.Status)
	require.Equal(t, "iPhone 13 display assembly", part.Name)
	require.True(t, part.UnitPrice.Equal(decimal.NewFromInt(8999)))

	// A later catalogue price change must not move the snapshot.
	f.stock.mu.Lock()
	item := f.stock.items[7]
	item.SellingPrice = decimal.NewFromInt(10999)
	f.stock.items[7] = item
	f.stock.mu.Unlock()

	parts, err := f.svc.Parts(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.True(t, parts[0].UnitPrice.Equal(decimal.NewFromInt(8999)))
}

func TestApprovePartDeductsStock(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	part, err := f.svc.RequestPart(context.Background(), technician(), PartRequestInput{
		JobID: job.ID, ItemID: 7, Quantity: 2,
	})
	require.NoError(t, err)

	approved, err := f.svc.ApprovePart(context.Background(), manager(), part.ID)
	require.NoError(t, err)
	require.Equal(t, PartApproved, approved.Status)
	require.Equal(t, int64(3), f.stock.items[7].Quantity)

	_, err = f.svc.ApprovePart(context.Background(), manager(), part.ID)
	require.ErrorIs(t, err, ErrPartAlreadyDecided)
}

func TestApprovePartRollsBackWhenStockInsufficient(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	part, err := f.svc.RequestPart(context.Background(), technician(), PartRequestInput{
		JobID: job.ID, ItemID: 7, Quantity: 9,
	})
	require.NoError(t, err)

	_, err = f.svc.ApprovePart(context.Background(), manager(), part.ID)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	parts, err := f.svc.Parts(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.Equal(t, PartPending, parts[0].Status)
	require.Equal(t, int64(5), f.stock.items[7].Quantity)
}

func TestApprovePartRetryDeductsStockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	part, err := f.svc.RequestPart(context.Background(), technician(), PartRequestInput{
		JobID: job.ID, ItemID: 7, Quantity: 2,
	})
	require.NoError(t, err)

	// First commit attempt hits a serialization conflict. The retry must
	// rerun approval and deduction as one unit against the rolled-back
	// state, never deducting twice for a single approval.
	f.repo.commitErrs = []error{&pgconn.PgError{Code: "40001"}}

	approved, err := f.svc.ApprovePart(context.Background(), manager(), part.ID)
	require.NoError(t, err)
	require.Equal(t, PartApproved, approved.Status)
	require.Equal(t, 2, f.stock.deducts)
	require.Equal(t, int64(3), f.stock.items[7].Quantity)
}

func TestApprovePartRetryExhaustionLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	part, err := f.svc.RequestPart(context.Background(), technician(), PartRequestInput{
		JobID: job.ID, ItemID: 7, Quantity: 2,
	})
	require.NoError(t, err)

	f.repo.commitErrs = []error{
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40001"},
	}

	_, err = f.svc.ApprovePart(context.Background(), manager(), part.ID)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)

	parts, err := f.svc.Parts(context.Background(), manager(), job.ID)
	require.NoError(t, err)
	require.Equal(t, PartPending, parts[0].Status)
	require.Equal(t, int64(5), f.stock.items[7].Quantity)
}

func TestRejectPartRequiresReason(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	part, err := f.svc.RequestPart(context.Background(), technician(), PartRequestInput{
		JobID: job.ID, Name: "Generic 65W charger", Quantity: 1, UnitPrice: decimal.NewFromInt(1200),
	})
	require.NoError(t, err)

	_, err = f.svc.RejectPart(context.Background(), manager(), part.ID, "")
	require.True(t, shared.IsValidation(err))

	rejected, err := f.svc.RejectPart(context.Background(), manager(), part.ID, "customer declined the estimate")
	require.NoError(t, err)
	require.Equal(t, PartRejected, rejected.Status)
	require.Equal(t, int64(5), f.stock.items[7].Quantity)
}

func TestJobOutsideScopeMasksNotFound(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t)

	outsider := rbac.NewPrincipal(8, 1, rbac.RoleManager, []int64{11})
	_, err := f.svc.GetJob(context.Background(), outsider, job.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotErrorIs(t, err, shared.ErrUnauthorized)
}

func TestCreateJobRequiresCapability(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateJob(context.Background(), technician(), CreateJobInput{
		BranchID: 10, CustomerID: 100, DeviceType: "LAPTOP", Complaint: "broken",
	})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
