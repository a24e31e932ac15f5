package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentType enumerates supported stock movements.
type AdjustmentType string

const (
	// AdjustmentAdd increases stock, e.g. a purchase receipt.
	AdjustmentAdd AdjustmentType = "ADD"
	// AdjustmentDeduct decreases stock, e.g. a part consumed on a job.
	AdjustmentDeduct AdjustmentType = "DEDUCT"
	// AdjustmentSet overwrites the quantity after a physical count.
	AdjustmentSet AdjustmentType = "SET"
)

// Item is a stocked part or accessory held by one branch.
type Item struct {
	ID                int64           `json:"id"`
	OrganizationID    int64           `json:"organization_id"`
	BranchID          int64           `json:"branch_id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	HSNCode           string          `json:"hsn_code"`
	Unit              string          `json:"unit"`
	Quantity          int64           `json:"quantity"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	GSTRate           decimal.Decimal `json:"gst_rate"`
	WarrantyMonths    int             `json:"warranty_months"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsOutOfStock reports a zero balance.
func (i Item) IsOutOfStock() bool {
	return i.Quantity == 0
}

// IsLowStock reports a balance at or under the threshold but not yet zero.
func (i Item) IsLowStock() bool {
	return i.Quantity > 0 && i.Quantity <= i.LowStockThreshold
}

// StockAdjustment is the immutable record of one stock movement. Quantity
// carries the movement size for ADD and DEDUCT and the target level for SET;
// the before/after pair makes every record independently verifiable.
type StockAdjustment struct {
	ID             int64          `json:"id"`
	ItemID         int64          `json:"item_id"`
	BranchID       int64          `json:"branch_id"`
	ActorID        int64          `json:"actor_id"`
	Type           AdjustmentType `json:"type"`
	Quantity       int64          `json:"quantity"`
	QuantityBefore int64          `json:"quantity_before"`
	QuantityAfter  int64          `json:"quantity_after"`
	Reason         string         `json:"reason"`
	JobID          int64          `json:"job_id,omitempty"`
	At             time.Time      `json:"at"`
}

// AdjustmentInput is the request to move stock.
type AdjustmentInput struct {
	ItemID   int64
	Type     AdjustmentType
	Quantity int64
	Reason   string
	JobID    int64
}

// ItemFilters narrows item listings.
type ItemFilters struct {
	BranchIDs    []int64
	Search       string
	Category     string
	LowStockOnly bool
	IsActive     *bool
	Page         int
	PerPage      int
}

// AdjustmentFilters narrows adjustment listings.
type AdjustmentFilters struct {
	ItemID    int64
	BranchIDs []int64
	JobID     int64
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

var (
	// ErrInsufficientStock indicates a deduction larger than the balance.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a zero or negative movement size.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrItemInactive indicates a movement against a deactivated item.
	ErrItemInactive = errors.New("inventory: item inactive")
)
