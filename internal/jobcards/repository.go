package jobcards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fixdesk/fixdesk/internal/platform/db"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Repository provides PostgreSQL persistence for job cards.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, organization_id, branch_id, customer_id, job_number, status,
	device_type, brand, model, serial_number, complaint, physical_condition, accessories,
	device_password_enc, bios_password_enc, diagnosis_notes, estimated_cost,
	is_urgent, is_warranty, COALESCE(technician_id, 0), received_by_id,
	completed_at, delivered_at, created_at, updated_at`

func scanJob(row pgx.Row) (JobCard, error) {
	var j JobCard
	err := row.Scan(&j.ID, &j.OrganizationID, &j.BranchID, &j.CustomerID, &j.JobNumber, &j.Status,
		&j.DeviceType, &j.Brand, &j.Model, &j.SerialNumber, &j.Complaint, &j.PhysicalCondition,
		&j.Accessories, &j.devicePasswordEnc, &j.biosPasswordEnc, &j.DiagnosisNotes,
		&j.EstimatedCost, &j.IsUrgent, &j.IsWarranty, &j.TechnicianID, &j.ReceivedByID,
		&j.CompletedAt, &j.DeliveredAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobCard{}, shared.ErrNotFound
	}
	return j, err
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetJob fetches a job restricted to the given branches.
func (r *Repository) GetJob(ctx context.Context, id int64, branchIDs []int64) (JobCard, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_cards WHERE id = $1 AND branch_id = ANY($2)`,
		id, branchIDs)
	return scanJob(row)
}

// ListJobs returns jobs matching the filters plus a total count.
func (r *Repository) ListJobs(ctx context.Context, filters JobFilters) ([]JobCard, int, error) {
	query := `SELECT ` + jobColumns + ` FROM job_cards WHERE branch_id = ANY($1)`
	countQuery := `SELECT COUNT(*) FROM job_cards WHERE branch_id = ANY($1)`
	args := []any{filters.BranchIDs}

	appendCond := func(clause string, value any) {
		args = append(args, value)
		cond := " AND " + fmt.Sprintf(clause, len(args))
		query += cond
		countQuery += cond
	}

	if filters.Status != "" {
		appendCond("status = $%d", filters.Status)
	}
	if filters.TechnicianID > 0 {
		appendCond("technician_id = $%d", filters.TechnicianID)
	}
	if filters.CustomerID > 0 {
		appendCond("customer_id = $%d", filters.CustomerID)
	}
	if filters.Search != "" {
		appendCond("(job_number ILIKE $%[1]d OR serial_number ILIKE $%[1]d OR model ILIKE $%[1]d)",
			"%"+filters.Search+"%")
	}
	if filters.IsUrgent {
		cond := " AND is_urgent"
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, (filters.Page-1)*filters.PerPage)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []JobCard
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, job)
	}
	return out, total, rows.Err()
}

// ListHistory returns the transition trail oldest first.
func (r *Repository) ListHistory(ctx context.Context, jobID int64) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, job_id, from_status, to_status, actor_id, note, is_override, created_at
		 FROM job_status_history WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.JobID, &h.FromStatus, &h.ToStatus, &h.ActorID,
			&h.Note, &h.IsOverride, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const partColumns = `id, job_id, branch_id, COALESCE(item_id, 0), name, quantity, unit_price,
	warranty_days, status, requested_by_id, COALESCE(decided_by_id, 0), decision_reason,
	created_at, decided_at`

func scanPart(row pgx.Row) (PartRequest, error) {
	var p PartRequest
	err := row.Scan(&p.ID, &p.JobID, &p.BranchID, &p.ItemID, &p.Name, &p.Quantity, &p.UnitPrice,
		&p.WarrantyDays, &p.Status, &p.RequestedByID, &p.DecidedByID, &p.DecisionReason,
		&p.CreatedAt, &p.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PartRequest{}, shared.ErrNotFound
	}
	return p, err
}

// ListParts returns part requests for a job oldest first.
func (r *Repository) ListParts(ctx context.Context, jobID int64) ([]PartRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+partColumns+` FROM job_part_requests WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartRequest
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListNotes returns the note thread oldest first.
func (r *Repository) ListNotes(ctx context.Context, jobID int64) ([]Note, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, job_id, author_id, body, created_at
		 FROM job_notes WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.JobID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// InsertNote appends a note.
func (r *Repository) InsertNote(ctx context.Context, note Note) (Note, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO job_notes (job_id, author_id, body, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, job_id, author_id, body, created_at`,
		note.JobID, note.AuthorID, note.Body)
	var n Note
	err := row.Scan(&n.ID, &n.JobID, &n.AuthorID, &n.Body, &n.CreatedAt)
	return n, err
}

type txRepo struct {
	tx pgx.Tx
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// AllocateJobNumber bumps the branch job counter and returns the new
// sequence. The row lock taken by the update serialises concurrent
// intakes for the branch.
func (r *txRepo) AllocateJobNumber(ctx context.Context, branchID int64) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO branch_counters (branch_id, job_seq, invoice_seq)
		 VALUES ($1, 1, 0)
		 ON CONFLICT (branch_id) DO UPDATE SET job_seq = branch_counters.job_seq + 1
		 RETURNING job_seq`, branchID).Scan(&seq)
	return seq, err
}

func (r *txRepo) InsertJob(ctx context.Context, job JobCard) (JobCard, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO job_cards (organization_id, branch_id, customer_id, job_number, status,
			device_type, brand, model, serial_number, complaint, physical_condition, accessories,
			device_password_enc, bios_password_enc, diagnosis_notes, estimated_cost,
			is_urgent, is_warranty, received_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW(), NOW())
		RETURNING `+jobColumns,
		job.OrganizationID, job.BranchID, job.CustomerID, job.JobNumber, job.Status,
		job.DeviceType, job.Brand, job.Model, job.SerialNumber, job.Complaint,
		job.PhysicalCondition, job.Accessories, job.devicePasswordEnc, job.biosPasswordEnc,
		job.DiagnosisNotes, job.EstimatedCost, job.IsUrgent, job.IsWarranty, job.ReceivedByID)
	return scanJob(row)
}

func (r *txRepo) GetJobForUpdate(ctx context.Context, jobID int64) (JobCard, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_cards WHERE id = $1 FOR UPDATE`, jobID)
	return scanJob(row)
}

func (r *txRepo) UpdateStatus(ctx context.Context, job JobCard) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE job_cards SET status = $2, completed_at = $3, delivered_at = $4, updated_at = NOW()
		 WHERE id = $1`,
		job.ID, job.Status, job.CompletedAt, job.DeliveredAt)
	return err
}

func (r *txRepo) UpdateTechnician(ctx context.Context, jobID, technicianID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE job_cards SET technician_id = $2, updated_at = NOW() WHERE id = $1`,
		jobID, technicianID)
	return err
}

func (r *txRepo) UpdateDiagnosis(ctx context.Context, jobID int64, notes string, estimate decimal.Decimal) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE job_cards SET diagnosis_notes = $2, estimated_cost = $3, updated_at = NOW()
		 WHERE id = $1`,
		jobID, notes, estimate)
	return err
}

func (r *txRepo) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO job_status_history (job_id, from_status, to_status, actor_id, note, is_override, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		entry.JobID, entry.FromStatus, entry.ToStatus, entry.ActorID, entry.Note,
		entry.IsOverride, nullTime(entry.At))
	return err
}

func (r *txRepo) InsertPartRequest(ctx context.Context, pr PartRequest) (PartRequest, error) {
	var itemID any
	if pr.ItemID > 0 {
		itemID = pr.ItemID
	}
	row := r.tx.QueryRow(ctx,
		`INSERT INTO job_part_requests (job_id, branch_id, item_id, name, quantity, unit_price,
			warranty_days, status, requested_by_id, decision_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', NOW())
		RETURNING `+partColumns,
		pr.JobID, pr.BranchID, itemID, pr.Name, pr.Quantity, pr.UnitPrice,
		pr.WarrantyDays, pr.Status, pr.RequestedByID)
	return scanPart(row)
}

func (r *txRepo) GetPartRequestForUpdate(ctx context.Context, id int64) (PartRequest, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+partColumns+` FROM job_part_requests WHERE id = $1 FOR UPDATE`, id)
	return scanPart(row)
}

func (r *txRepo) UpdatePartRequest(ctx context.Context, pr PartRequest) error {
	var decidedBy any
	if pr.DecidedByID > 0 {
		decidedBy = pr.DecidedByID
	}
	_, err := r.tx.Exec(ctx,
		`UPDATE job_part_requests SET status = $2, decided_by_id = $3, decision_reason = $4, decided_at = $5
		 WHERE id = $1`,
		pr.ID, pr.Status, decidedBy, pr.DecisionReason, pr.DecidedAt)
	return err
}
