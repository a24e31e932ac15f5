package inventory

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fixdesk/fixdesk/internal/audit"
	"github.com/fixdesk/fixdesk/internal/notify"
	"github.com/fixdesk/fixdesk/internal/platform/db"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64, branchIDs []int64) (Item, error)
	ListItems(ctx context.Context, filters ItemFilters) ([]Item, int, error)
	ListAdjustments(ctx context.Context, filters AdjustmentFilters) ([]StockAdjustment, int, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
}

// TxRepository exposes the operations available inside a movement
// transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateQuantity(ctx context.Context, itemID, quantity int64) error
	InsertAdjustment(ctx context.Context, adj StockAdjustment) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service coordinates the stock ledger for all branches.
type Service struct {
	repo     RepositoryPort
	guard    *scope.Guard
	audit    AuditPort
	dispatch notify.Dispatcher
}

// NewService builds Service.
func NewService(repo RepositoryPort, guard *scope.Guard, auditor AuditPort, dispatch notify.Dispatcher) *Service {
	if dispatch == nil {
		dispatch = notify.NopDispatcher{}
	}
	return &Service{repo: repo, guard: guard, audit: auditor, dispatch: dispatch}
}

// ListItems returns items in the principal's visible branches.
func (s *Service) ListItems(ctx context.Context, p rbac.Principal, filters ItemFilters) ([]Item, shared.Pagination, error) {
	if !p.Can(rbac.CapInventoryView) {
		return nil, shared.Pagination{}, shared.ErrUnauthorized
	}
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
	items, total, err := s.repo.ListItems(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// GetItem fetches one item inside the principal's scope.
func (s *Service) GetItem(ctx context.Context, p rbac.Principal, id int64) (Item, error) {
	if !p.Can(rbac.CapInventoryView) {
		return Item{}, shared.ErrUnauthorized
	}
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return Item{}, err
	}
	return s.repo.GetItem(ctx, id, branchIDs)
}

// CreateItem registers a new stocked item. The opening balance is zero;
// stock arrives through an ADD adjustment so the ledger starts complete.
func (s *Service) CreateItem(ctx context.Context, p rbac.Principal, item Item) (Item, error) {
	if !p.Can(rbac.CapInventoryAdjust) {
		return Item{}, shared.ErrUnauthorized
	}
	if err := s.guard.Authorize(ctx, p, item.BranchID); err != nil {
		return Item{}, err
	}
	if err := validateItem(item); err != nil {
		return Item{}, err
	}
	item.OrganizationID = p.OrganizationID
	item.Quantity = 0
	item.IsActive = true
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, p, created.BranchID, "item.created", created.ID, map[string]any{
		"sku": created.SKU, "name": created.Name,
	})
	return created, nil
}

// UpdateItem changes item attributes. Quantity is untouchable here; only
// adjustments move stock.
func (s *Service) UpdateItem(ctx context.Context, p rbac.Principal, item Item) (Item, error) {
	if !p.Can(rbac.CapInventoryAdjust) {
		return Item{}, shared.ErrUnauthorized
	}
	branchIDs, err := s.guard.AccessibleBranches(ctx, p)
	if err != nil {
		return Item{}, err
	}
	current, err := s.repo.GetItem(ctx, item.ID, branchIDs)
	if err != nil {
		return Item{}, err
	}
	if err := validateItem(item); err != nil {
		return Item{}, err
	}
	item.OrganizationID = current.OrganizationID
	item.BranchID = current.BranchID
	item.Quantity = current.Quantity
	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, p, updated.BranchID, "item.updated", updated.ID, nil)
	return updated, nil
}

// Adjust applies one stock movement under a row lock. DEDUCT below zero is
// rejected before anything is written; the balance can never go negative.
func (s *Service) Adjust(ctx context.Context, p rbac.Principal, input AdjustmentInput) (StockAdjustment, error) {
	if !p.Can(rbac.CapInventoryAdjust) {
		return StockAdjustment{}, shared.ErrUnauthorized
	}
	return s.applyAdjustment(ctx, p, input)
}

// DeductForJob consumes stock for an approved part request. Capability is
// the part approval itself; the movement carries the job reference.
func (s *Service) DeductForJob(ctx context.Context, p rbac.Principal, itemID, quantity, jobID int64) (StockAdjustment, error) {
	return s.applyAdjustment(ctx, p, AdjustmentInput{
		ItemID:   itemID,
		Type:     AdjustmentDeduct,
		Quantity: quantity,
		Reason:   "part approved for job",
		JobID:    jobID,
	})
}

// ListAdjustments returns movement history inside the principal's scope.
func (s *Service) ListAdjustments(ctx context.Context, p rbac.Principal, filters AdjustmentFilters) ([]StockAdjustment, shared.Pagination, error) {
	if !p.Can(rbac.CapInventoryView) {
		return nil, shared.Pagination{}, shared.ErrUnauthorized
	}
	branchIDs, err := s.guard.Filter(ctx, p, filters.BranchIDs)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filters.BranchIDs = branchIDs
	if filters.PerPage <= 0 || filters.PerPage > 100 {
		filters.PerPage = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	adjustments, total, err := s.repo.ListAdjustments(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return adjustments, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

func (s *Service) applyAdjustment(ctx context.Context, p rbac.Principal, input AdjustmentInput) (StockAdjustment, error) {
	switch input.Type {
	case AdjustmentAdd, AdjustmentDeduct:
		if input.Quantity <= 0 {
			return StockAdjustment{}, ErrInvalidQuantity
		}
	case AdjustmentSet:
		if input.Quantity < 0 {
			return StockAdjustment{}, ErrInvalidQuantity
		}
	default:
		return StockAdjustment{}, shared.NewValidationError("type", "must be ADD, DEDUCT or SET")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return StockAdjustment{}, shared.NewValidationError("reason", "is required")
	}

	var (
		adj     StockAdjustment
		crossed bool
		item    Item
	)
	// When joined to an enclosing transaction (part approval), the caller
	// owns the retry loop and the commit.
	attempts := shared.DefaultRetryAttempts
	if db.InTx(ctx) {
		attempts = 1
	}
	err := shared.WithRetry(ctx, attempts, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			locked, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}
			if authErr := s.guard.Authorize(ctx, p, locked.BranchID); authErr != nil {
				return authErr
			}
			if !locked.IsActive {
				return ErrItemInactive
			}
			before := locked.Quantity
			var after int64
			switch input.Type {
			case AdjustmentAdd:
				after = before + input.Quantity
			case AdjustmentDeduct:
				if input.Quantity > before {
					return ErrInsufficientStock
				}
				after = before - input.Quantity
			case AdjustmentSet:
				after = input.Quantity
			}
			adj = StockAdjustment{
				ItemID:         locked.ID,
				BranchID:       locked.BranchID,
				ActorID:        p.UserID,
				Type:           input.Type,
				Quantity:       input.Quantity,
				QuantityBefore: before,
				QuantityAfter:  after,
				Reason:         input.Reason,
				JobID:          input.JobID,
			}
			id, err := tx.InsertAdjustment(ctx, adj)
			if err != nil {
				return err
			}
			adj.ID = id
			if err := tx.UpdateQuantity(ctx, locked.ID, after); err != nil {
				return err
			}
			item = locked
			item.Quantity = after
			crossed = before > locked.LowStockThreshold && after <= locked.LowStockThreshold
			return nil
		})
	})
	if err != nil {
		return StockAdjustment{}, err
	}

	// Audit and alerts wait for the enclosing commit when the movement is
	// part of a larger transaction.
	db.OnCommit(ctx, func() {
		s.recordAudit(ctx, p, adj.BranchID, "stock.adjusted", adj.ItemID, map[string]any{
			"type": string(adj.Type), "quantity": adj.Quantity,
			"before": adj.QuantityBefore, "after": adj.QuantityAfter,
			"reason": adj.Reason, "job_id": adj.JobID,
		})
		if crossed {
			s.dispatch.Dispatch(ctx, notify.Event{
				Type:     notify.EventLowStock,
				BranchID: item.BranchID,
				Data: map[string]string{
					"item_name": item.Name,
					"quantity":  strconv.FormatInt(item.Quantity, 10),
					"unit":      item.Unit,
				},
			})
		}
	})
	return adj, nil
}

func (s *Service) recordAudit(ctx context.Context, p rbac.Principal, branchID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		BranchID: branchID,
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func validateItem(item Item) error {
	if strings.TrimSpace(item.Name) == "" {
		return shared.NewValidationError("name", "is required")
	}
	if strings.TrimSpace(item.SKU) == "" {
		return shared.NewValidationError("sku", "is required")
	}
	if item.LowStockThreshold < 0 {
		return shared.NewValidationError("low_stock_threshold", "must not be negative")
	}
	if item.PurchasePrice.IsNegative() || item.SellingPrice.IsNegative() {
		return shared.NewValidationError("price", "must not be negative")
	}
	if item.GSTRate.IsNegative() || item.GSTRate.GreaterThan(hundred) {
		return shared.NewValidationError("gst_rate", "must be between 0 and 100")
	}
	if item.WarrantyMonths < 0 {
		return shared.NewValidationError("warranty_months", "must not be negative")
	}
	return nil
}

var hundred = decimal.NewFromInt(100)
