package billing

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

// Repository persists invoices, line items and payments in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, organization_id, branch_id, COALESCE(job_id, 0), invoice_number,
	customer_name, customer_mobile, customer_address, customer_gstin, customer_state_code,
	is_interstate, subtotal, discount_total, cgst_total, sgst_total, igst_total, tax_total,
	total, paid_amount, status, is_finalized, COALESCE(cancel_reason, ''),
	due_date, finalized_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.BranchID, &inv.JobID, &inv.InvoiceNumber,
		&inv.CustomerName, &inv.CustomerMobile, &inv.CustomerAddress, &inv.CustomerGSTIN,
		&inv.CustomerStateCode, &inv.IsInterstate, &inv.Subtotal, &inv.DiscountTotal,
		&inv.CGSTTotal, &inv.SGSTTotal, &inv.IGSTTotal, &inv.TaxTotal, &inv.Total,
		&inv.PaidAmount, &inv.Status, &inv.IsFinalized, &inv.CancelReason,
		&inv.DueDate, &inv.FinalizedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}
	return inv, nil
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetInvoice fetches one invoice restricted to branchIDs.
func (r *Repository) GetInvoice(ctx context.Context, id int64, branchIDs []int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND branch_id = ANY($2)`,
		id, branchIDs)
	return scanInvoice(row)
}

// ListInvoices returns a filtered page plus the unpaged total.
func (r *Repository) ListInvoices(ctx context.Context, f InvoiceFilters) ([]Invoice, int, error) {
	where := `branch_id = ANY($1)`
	args := []any{f.BranchIDs}
	appendCond := func(clause string, value any) {
		args = append(args, value)
		where += " AND " + fmt.Sprintf(clause, len(args))
	}
	if f.Status != "" {
		appendCond("status = $%d", f.Status)
	}
	if f.JobID > 0 {
		appendCond("job_id = $%d", f.JobID)
	}
	if f.Search != "" {
		appendCond("(invoice_number ILIKE $%[1]d OR customer_name ILIKE $%[1]d OR customer_mobile ILIKE $%[1]d)",
			"%"+f.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where+
			fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

// ListLineItems returns lines in insertion order.
func (r *Repository) ListLineItems(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	return listLineItems(ctx, r.pool, invoiceID)
}

// ListPayments returns the payment trail in insertion order.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, invoice_id, amount, method, COALESCE(reference, ''), is_verified,
			actor_id, paid_at, created_at
		 FROM payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var pm Payment
		if err := rows.Scan(&pm.ID, &pm.InvoiceID, &pm.Amount, &pm.Method, &pm.Reference,
			&pm.IsVerified, &pm.ActorID, &pm.PaidAt, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, pm)
	}
	return payments, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listLineItems(ctx context.Context, q querier, invoiceID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, invoice_id, type, description, quantity, unit_price, gst_rate,
			discount_percent, line_amount, cgst_amount, sgst_amount, igst_amount,
			COALESCE(item_id, 0)
		 FROM invoice_line_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var lines []LineItem
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.ID, &li.InvoiceID, &li.Type, &li.Description, &li.Quantity,
			&li.UnitPrice, &li.GSTRate, &li.DiscountPercent, &li.LineAmount,
			&li.CGSTAmount, &li.SGSTAmount, &li.IGSTAmount, &li.ItemID); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		lines = append(lines, li)
	}
	return lines, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

// AllocateInvoiceNumber increments the branch invoice counter and returns
// the new sequence. The row lock taken by the upsert serialises
// concurrent allocations on the same branch.
func (t *txRepo) AllocateInvoiceNumber(ctx context.Context, branchID int64) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO branch_counters (branch_id, job_seq, invoice_seq)
		 VALUES ($1, 0, 1)
		 ON CONFLICT (branch_id)
		 DO UPDATE SET invoice_seq = branch_counters.invoice_seq + 1
		 RETURNING invoice_seq`, branchID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocate invoice number: %w", err)
	}
	return seq, nil
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := t.tx.QueryRow(ctx,
		`INSERT INTO invoices (organization_id, branch_id, job_id, invoice_number,
			customer_name, customer_mobile, customer_address, customer_gstin,
			customer_state_code, is_interstate, subtotal, discount_total, cgst_total,
			sgst_total, igst_total, tax_total, total, paid_amount, status, is_finalized,
			due_date, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, NOW(), NOW())
		 RETURNING `+invoiceColumns,
		inv.OrganizationID, inv.BranchID, inv.JobID, inv.InvoiceNumber,
		inv.CustomerName, inv.CustomerMobile, inv.CustomerAddress, inv.CustomerGSTIN,
		inv.CustomerStateCode, inv.IsInterstate, inv.Subtotal, inv.DiscountTotal,
		inv.CGSTTotal, inv.SGSTTotal, inv.IGSTTotal, inv.TaxTotal, inv.Total,
		inv.PaidAmount, inv.Status, inv.IsFinalized, inv.DueDate)
	return scanInvoice(row)
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

func (t *txRepo) InsertLineItem(ctx context.Context, line LineItem) (LineItem, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO invoice_line_items (invoice_id, type, description, quantity,
			unit_price, gst_rate, discount_percent, line_amount, cgst_amount,
			sgst_amount, igst_amount, item_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, 0))
		 RETURNING id`,
		line.InvoiceID, line.Type, line.Description, line.Quantity, line.UnitPrice,
		line.GSTRate, line.DiscountPercent, line.LineAmount, line.CGSTAmount,
		line.SGSTAmount, line.IGSTAmount, line.ItemID).Scan(&line.ID)
	if err != nil {
		return LineItem{}, fmt.Errorf("insert line item: %w", err)
	}
	return line, nil
}

func (t *txRepo) ListLineItems(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	return listLineItems(ctx, t.tx, invoiceID)
}

func (t *txRepo) UpdateTotals(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE invoices SET subtotal = $2, discount_total = $3, cgst_total = $4,
			sgst_total = $5, igst_total = $6, tax_total = $7, total = $8,
			updated_at = NOW()
		 WHERE id = $1`,
		inv.ID, inv.Subtotal, inv.DiscountTotal, inv.CGSTTotal, inv.SGSTTotal,
		inv.IGSTTotal, inv.TaxTotal, inv.Total)
	if err != nil {
		return fmt.Errorf("update totals: %w", err)
	}
	return nil
}

func (t *txRepo) MarkFinalized(ctx context.Context, id int64, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE invoices SET is_finalized = TRUE, finalized_at = $2, status = $3,
			updated_at = NOW()
		 WHERE id = $1`, id, at, StatusPending)
	if err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}
	return nil
}

func (t *txRepo) InsertPayment(ctx context.Context, pm Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO payments (invoice_id, amount, method, reference, is_verified,
			actor_id, paid_at, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		pm.InvoiceID, pm.Amount, pm.Method, pm.Reference, pm.IsVerified,
		pm.ActorID, pm.PaidAt).Scan(&pm.ID, &pm.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return pm, nil
}

func (t *txRepo) MarkPaymentVerified(ctx context.Context, invoiceID, paymentID int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE payments SET is_verified = TRUE WHERE id = $1 AND invoice_id = $2`,
		paymentID, invoiceID)
	if err != nil {
		return fmt.Errorf("mark payment verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`,
		invoiceID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return sum, nil
}

func (t *txRepo) UpdatePaymentState(ctx context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE invoices SET paid_amount = $2, status = $3, updated_at = NOW()
		 WHERE id = $1`, id, paid, status)
	if err != nil {
		return fmt.Errorf("update payment state: %w", err)
	}
	return nil
}

func (t *txRepo) MarkCancelled(ctx context.Context, id int64, reason string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE invoices SET status = $2, cancel_reason = $3, updated_at = NOW()
		 WHERE id = $1`, id, StatusCancelled, reason)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	return nil
}
