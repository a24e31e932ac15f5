package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixdesk/fixdesk/internal/platform/db"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Repository provides PostgreSQL persistence for the stock ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, organization_id, branch_id, sku, name, category, hsn_code, unit,
	quantity, low_stock_threshold, purchase_price, selling_price, gst_rate, warranty_months,
	is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.OrganizationID, &i.BranchID, &i.SKU, &i.Name, &i.Category,
		&i.HSNCode, &i.Unit, &i.Quantity, &i.LowStockThreshold, &i.PurchasePrice,
		&i.SellingPrice, &i.GSTRate, &i.WarrantyMonths, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return i, err
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetItem fetches an item restricted to the given branches.
func (r *Repository) GetItem(ctx context.Context, id int64, branchIDs []int64) (Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 AND branch_id = ANY($2)`,
		id, branchIDs)
	return scanItem(row)
}

// ListItems returns items matching the filters plus a total count.
func (r *Repository) ListItems(ctx context.Context, filters ItemFilters) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE branch_id = ANY($1)`
	countQuery := `SELECT COUNT(*) FROM inventory_items WHERE branch_id = ANY($1)`
	args := []any{filters.BranchIDs}

	appendCond := func(clause string, value any) {
		args = append(args, value)
		cond := " AND " + fmt.Sprintf(clause, len(args))
		query += cond
		countQuery += cond
	}

	if filters.Category != "" {
		appendCond("category = $%d", filters.Category)
	}
	if filters.IsActive != nil {
		appendCond("is_active = $%d", *filters.IsActive)
	}
	if filters.Search != "" {
		appendCond("(name ILIKE $%[1]d OR sku ILIKE $%[1]d)", "%"+filters.Search+"%")
	}
	if filters.LowStockOnly {
		cond := " AND quantity <= low_stock_threshold"
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, (filters.Page-1)*filters.PerPage)
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

// ListAdjustments returns movement records matching the filters.
func (r *Repository) ListAdjustments(ctx context.Context, filters AdjustmentFilters) ([]StockAdjustment, int, error) {
	query := `SELECT id, item_id, branch_id, actor_id, type, quantity, quantity_before,
		quantity_after, reason, COALESCE(job_id, 0), created_at
		FROM stock_adjustments WHERE branch_id = ANY($1)`
	countQuery := `SELECT COUNT(*) FROM stock_adjustments WHERE branch_id = ANY($1)`
	args := []any{filters.BranchIDs}

	appendCond := func(clause string, value any) {
		args = append(args, value)
		cond := " AND " + fmt.Sprintf(clause, len(args))
		query += cond
		countQuery += cond
	}

	if filters.ItemID > 0 {
		appendCond("item_id = $%d", filters.ItemID)
	}
	if filters.JobID > 0 {
		appendCond("job_id = $%d", filters.JobID)
	}
	if !filters.From.IsZero() {
		appendCond("created_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		appendCond("created_at <= $%d", filters.To)
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

	var out []StockAdjustment
	for rows.Next() {
		var a StockAdjustment
		if err := rows.Scan(&a.ID, &a.ItemID, &a.BranchID, &a.ActorID, &a.Type, &a.Quantity,
			&a.QuantityBefore, &a.QuantityAfter, &a.Reason, &a.JobID, &a.At); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// CreateItem inserts a new item.
func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO inventory_items (organization_id, branch_id, sku, name, category, hsn_code,
			unit, quantity, low_stock_threshold, purchase_price, selling_price, gst_rate,
			warranty_months, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING `+itemColumns,
		item.OrganizationID, item.BranchID, item.SKU, item.Name, item.Category, item.HSNCode,
		item.Unit, item.Quantity, item.LowStockThreshold, item.PurchasePrice, item.SellingPrice,
		item.GSTRate, item.WarrantyMonths, item.IsActive)
	return scanItem(row)
}

// UpdateItem rewrites item attributes. Quantity is deliberately absent; it
// moves only through adjustments.
func (r *Repository) UpdateItem(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE inventory_items SET sku = $2, name = $3, category = $4, hsn_code = $5, unit = $6,
			low_stock_threshold = $7, purchase_price = $8, selling_price = $9, gst_rate = $10,
			warranty_months = $11, is_active = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		item.ID, item.SKU, item.Name, item.Category, item.HSNCode, item.Unit,
		item.LowStockThreshold, item.PurchasePrice, item.SellingPrice, item.GSTRate,
		item.WarrantyMonths, item.IsActive)
	return scanItem(row)
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, itemID)
	return scanItem(row)
}

func (r *txRepo) UpdateQuantity(ctx context.Context, itemID, quantity int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE inventory_items SET quantity = $2, updated_at = NOW() WHERE id = $1`,
		itemID, quantity)
	return err
}

func (r *txRepo) InsertAdjustment(ctx context.Context, adj StockAdjustment) (int64, error) {
	var jobID any
	if adj.JobID > 0 {
		jobID = adj.JobID
	}
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO stock_adjustments (item_id, branch_id, actor_id, type, quantity,
			quantity_before, quantity_after, reason, job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`,
		adj.ItemID, adj.BranchID, adj.ActorID, adj.Type, adj.Quantity,
		adj.QuantityBefore, adj.QuantityAfter, adj.Reason, jobID).Scan(&id)
	return id, err
}
