package customers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/fixdesk/fixdesk/internal/masterdata/shared"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Repository provides PostgreSQL persistence for customers.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, id int64, customer Customer) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, branch_id, first_name, last_name, email, mobile, address, city, state,
	pincode, state_code, gstin, company_name, sms_enabled, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.BranchID, &c.FirstName, &c.LastName, &c.Email, &c.Mobile, &c.Address,
		&c.City, &c.State, &c.Pincode, &c.StateCode, &c.GSTIN, &c.CompanyName, &c.SMSEnabled,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Customer, int, error) {
	filters.Normalize()
	query := `SELECT ` + customerColumns + ` FROM customers WHERE branch_id = ANY($1)`
	countQuery := `SELECT COUNT(*) FROM customers WHERE branch_id = ANY($1)`
	args := []any{filters.BranchIDs}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		placeholder := "$" + strconv.Itoa(len(args))
		clause := " AND (first_name ILIKE " + placeholder + " OR last_name ILIKE " + placeholder +
			" OR mobile ILIKE " + placeholder + ")"
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	query += " ORDER BY first_name, last_name LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, customer Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO customers (branch_id, first_name, last_name, email, mobile, address, city, state,
			pincode, state_code, gstin, company_name, sms_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+customerColumns,
		customer.BranchID, customer.FirstName, customer.LastName, customer.Email, customer.Mobile,
		customer.Address, customer.City, customer.State, customer.Pincode, customer.StateCode,
		customer.GSTIN, customer.CompanyName, customer.SMSEnabled)
	return scanCustomer(row)
}

func (r *repository) Update(ctx context.Context, id int64, customer Customer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET first_name=$2, last_name=$3, email=$4, mobile=$5, address=$6, city=$7,
			state=$8, pincode=$9, state_code=$10, gstin=$11, company_name=$12, sms_enabled=$13, updated_at=NOW()
		 WHERE id=$1`,
		id, customer.FirstName, customer.LastName, customer.Email, customer.Mobile, customer.Address,
		customer.City, customer.State, customer.Pincode, customer.StateCode, customer.GSTIN,
		customer.CompanyName, customer.SMSEnabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
