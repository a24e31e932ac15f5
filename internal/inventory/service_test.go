package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fixdesk/fixdesk/internal/audit"
	"github.com/fixdesk/fixdesk/internal/notify"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	items       map[int64]Item
	adjustments []StockAdjustment
	nextItemID  int64
	nextAdjID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Item)}
}

func (r *memoryRepo) seed(item Item) Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextItemID++
	item.ID = r.nextItemID
	r.items[item.ID] = item
	return item
}

// WithTx serialises callbacks with a mutex, mirroring the row lock the
// real repository takes.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prevAdjustments := r.adjustments
	prevNextAdjID := r.nextAdjID
	prevQty := make(map[int64]int64, len(r.items))
	for id, item := range r.items {
		prevQty[id] = item.Quantity
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.adjustments = prevAdjustments
		r.nextAdjID = prevNextAdjID
		for id, qty := range prevQty {
			item := r.items[id]
			item.Quantity = qty
			r.items[id] = item
		}
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(_ context.Context, id int64, branchIDs []int64) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	for _, b := range branchIDs {
		if b == item.BranchID {
			return item, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (r *memoryRepo) ListItems(_ context.Context, filters ItemFilters) ([]Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for _, item := range r.items {
		for _, b := range filters.BranchIDs {
			if b == item.BranchID {
				out = append(out, item)
				break
			}
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListAdjustments(_ context.Context, filters AdjustmentFilters) ([]StockAdjustment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockAdjustment
	for _, adj := range r.adjustments {
		if filters.ItemID > 0 && adj.ItemID != filters.ItemID {
			continue
		}
		out = append(out, adj)
	}
	return out, len(out), nil
}

func (r *memoryRepo) CreateItem(_ context.Context, item Item) (Item, error) {
	return r.seed(item), nil
}

func (r *memoryRepo) UpdateItem(_ context.Context, item Item) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return item, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetItemForUpdate(_ context.Context, itemID int64) (Item, error) {
	item, ok := tx.repo.items[itemID]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (tx *memoryTx) UpdateQuantity(_ context.Context, itemID, quantity int64) error {
	item := tx.repo.items[itemID]
	item.Quantity = quantity
	tx.repo.items[itemID] = item
	return nil
}

func (tx *memoryTx) InsertAdjustment(_ context.Context, adj StockAdjustment) (int64, error) {
	tx.repo.nextAdjID++
	adj.ID = tx.repo.nextAdjID
	tx.repo.adjustments = append(tx.repo.adjustments, adj)
	return adj.ID, nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, audit.Entry) error { return nil }

type staticDirectory map[int64][]int64

func (d staticDirectory) ListActiveIDsByOrganization(_ context.Context, orgID int64) ([]int64, error) {
	return d[orgID], nil
}

func newTestService(dispatch notify.Dispatcher) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	guard := scope.NewGuard(staticDirectory{1: {10, 11}})
	return NewService(repo, guard, nopAudit{}, dispatch), repo
}

func manager(branches ...int64) rbac.Principal {
	return rbac.NewPrincipal(5, 1, rbac.RoleManager, branches)
}

func seedScrewdriverSet(repo *memoryRepo, qty, threshold int64) Item {
	return repo.seed(Item{
		BranchID:          10,
		SKU:               "TOOL-001",
		Name:              "Precision screwdriver set",
		Unit:              "pcs",
		Quantity:          qty,
		LowStockThreshold: threshold,
		SellingPrice:      decimal.NewFromInt(499),
		GSTRate:           decimal.NewFromInt(18),
		IsActive:          true,
	})
}

func TestAdjustAddAndDeduct(t *testing.T) {
	svc, repo := newTestService(nil)
	item := seedScrewdriverSet(repo, 0, 2)
	ctx := context.Background()
	p := manager(10)

	adj, err := svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentAdd, Quantity: 10, Reason: "purchase"})
	require.NoError(t, err)
	require.Equal(t, int64(0), adj.QuantityBefore)
	require.Equal(t, int64(10), adj.QuantityAfter)

	adj, err = svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 4, Reason: "used on bench"})
	require.NoError(t, err)
	require.Equal(t, int64(6), adj.QuantityAfter)

	got, err := svc.GetItem(ctx, p, item.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), got.Quantity)
}

func TestDeductBelowZeroRejected(t *testing.T) {
	svc, repo := newTestService(nil)
	item := seedScrewdriverSet(repo, 3, 2)
	ctx := context.Background()
	p := manager(10)

	_, err := svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 4, Reason: "oversell"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	got, err := svc.GetItem(ctx, p, item.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Quantity)
	require.Empty(t, repo.adjustments)
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	svc, repo := newTestService(nil)
	item := seedScrewdriverSet(repo, 5, 0)
	p := manager(10)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Adjust(context.Background(), p, AdjustmentInput{
				ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 1, Reason: "parallel deduct",
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	require.Equal(t, 5, succeeded)

	got, err := svc.GetItem(context.Background(), p, item.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Quantity)
	require.Len(t, repo.adjustments, 5)
}

func TestSetOverwritesQuantity(t *testing.T) {
	svc, repo := newTestService(nil)
	item := seedScrewdriverSet(repo, 7, 2)
	ctx := context.Background()
	p := manager(10)

	adj, err := svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentSet, Quantity: 3, Reason: "stocktake"})
	require.NoError(t, err)
	require.Equal(t, int64(7), adj.QuantityBefore)
	require.Equal(t, int64(3), adj.QuantityAfter)

	_, err = svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentSet, Quantity: -1, Reason: "bad"})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestLowStockCrossingDispatchesAlert(t *testing.T) {
	dispatch := notify.NewMemoryDispatcher()
	svc, repo := newTestService(dispatch)
	item := seedScrewdriverSet(repo, 5, 4)
	ctx := context.Background()
	p := manager(10)

	// 5 -> 3 crosses the threshold of 4.
	_, err := svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 2, Reason: "job"})
	require.NoError(t, err)
	require.Len(t, dispatch.OfType(notify.EventLowStock), 1)

	// Further deductions under the threshold do not re-alert.
	_, err = svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 1, Reason: "job"})
	require.NoError(t, err)
	require.Len(t, dispatch.OfType(notify.EventLowStock), 1)
}

func TestAdjustOutsideBranchScopeMasksNotFound(t *testing.T) {
	svc, repo := newTestService(nil)
	item := seedScrewdriverSet(repo, 5, 2)
	ctx := context.Background()
	p := manager(11)

	_, err := svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 1, Reason: "shrinkage"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotErrorIs(t, err, shared.ErrUnauthorized)
}

func TestAdjustRequiresCapability(t *testing.T) {
	svc, repo := newTestService(nil)
	item := seedScrewdriverSet(repo, 5, 2)
	ctx := context.Background()
	tech := rbac.NewPrincipal(9, 1, rbac.RoleTechnician, []int64{10})

	_, err := svc.Adjust(ctx, tech, AdjustmentInput{ItemID: item.ID, Type: AdjustmentAdd, Quantity: 1, Reason: "nope"})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestCreateItemStartsAtZero(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	p := manager(10)

	created, err := svc.CreateItem(ctx, p, Item{
		BranchID:     10,
		SKU:          "SCRN-IP13",
		Name:         "iPhone 13 display assembly",
		Unit:         "pcs",
		Quantity:     50,
		SellingPrice: decimal.NewFromInt(8999),
		GSTRate:      decimal.NewFromInt(18),
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), created.Quantity)
	require.True(t, created.IsActive)
}

func TestInactiveItemRejectsMovement(t *testing.T) {
	svc, repo := newTestService(nil)
	item := repo.seed(Item{BranchID: 10, SKU: "OLD-1", Name: "Legacy battery", Quantity: 2, IsActive: false})
	ctx := context.Background()
	p := manager(10)

	_, err := svc.Adjust(ctx, p, AdjustmentInput{ItemID: item.ID, Type: AdjustmentDeduct, Quantity: 1, Reason: "use"})
	require.ErrorIs(t, err, ErrItemInactive)
}
