package branches

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/fixdesk/fixdesk/internal/masterdata/shared"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Repository provides PostgreSQL persistence for branches. It also serves
// as the scope guard's branch directory.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Branch, int, error)
	Get(ctx context.Context, id int64) (Branch, error)
	Create(ctx context.Context, branch Branch) (Branch, error)
	Update(ctx context.Context, id int64, branch Branch) error
	Deactivate(ctx context.Context, id int64) error
	ListActiveIDsByOrganization(ctx context.Context, organizationID int64) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const branchColumns = `id, organization_id, code, name, email, phone, address, city, state, pincode,
	gstin, state_code, invoice_prefix, job_prefix, default_gst_rate, sms_enabled, whatsapp_enabled,
	is_active, created_at, updated_at`

func scanBranch(row pgx.Row) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Code, &b.Name, &b.Email, &b.Phone, &b.Address,
		&b.City, &b.State, &b.Pincode, &b.GSTIN, &b.StateCode, &b.InvoicePrefix, &b.JobPrefix,
		&b.DefaultGSTRate, &b.SMSEnabled, &b.WhatsAppEnabled, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, shared.ErrNotFound
	}
	return b, err
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Branch, int, error) {
	filters.Normalize()
	query := `SELECT ` + branchColumns + ` FROM branches WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM branches WHERE 1=1`
	var args []any

	appendCond := func(clause string, value any) {
		args = append(args, value)
		cond := " AND " + fmt.Sprintf(clause, len(args))
		query += cond
		countQuery += cond
	}

	if filters.OrganizationID != nil {
		appendCond("organization_id = $%d", *filters.OrganizationID)
	}
	if len(filters.BranchIDs) > 0 {
		appendCond("id = ANY($%d)", filters.BranchIDs)
	}
	if filters.IsActive != nil {
		appendCond("is_active = $%d", *filters.IsActive)
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		placeholder := "$" + strconv.Itoa(len(args))
		clause := " AND (name ILIKE " + placeholder + " OR code ILIKE " + placeholder + ")"
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	query += " ORDER BY name LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Branch, error) {
	return scanBranch(r.pool.QueryRow(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, branch Branch) (Branch, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO branches (organization_id, code, name, email, phone, address, city, state, pincode,
			gstin, state_code, invoice_prefix, job_prefix, default_gst_rate, sms_enabled, whatsapp_enabled, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, TRUE)
		 RETURNING `+branchColumns,
		branch.OrganizationID, branch.Code, branch.Name, branch.Email, branch.Phone, branch.Address,
		branch.City, branch.State, branch.Pincode, branch.GSTIN, branch.StateCode,
		branch.InvoicePrefix, branch.JobPrefix, branch.DefaultGSTRate, branch.SMSEnabled, branch.WhatsAppEnabled)
	return scanBranch(row)
}

func (r *repository) Update(ctx context.Context, id int64, branch Branch) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE branches SET name=$2, email=$3, phone=$4, address=$5, city=$6, state=$7, pincode=$8,
			gstin=$9, state_code=$10, invoice_prefix=$11, job_prefix=$12, default_gst_rate=$13,
			sms_enabled=$14, whatsapp_enabled=$15, updated_at=NOW()
		 WHERE id=$1`,
		id, branch.Name, branch.Email, branch.Phone, branch.Address, branch.City, branch.State,
		branch.Pincode, branch.GSTIN, branch.StateCode, branch.InvoicePrefix, branch.JobPrefix,
		branch.DefaultGSTRate, branch.SMSEnabled, branch.WhatsAppEnabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE branches SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListActiveIDsByOrganization(ctx context.Context, organizationID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM branches WHERE organization_id = $1 AND is_active ORDER BY id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
