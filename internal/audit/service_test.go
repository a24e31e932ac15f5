package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

type memoryRepo struct {
	entries  []Entry
	accesses []PasswordAccess
}

func (r *memoryRepo) Insert(ctx context.Context, entry Entry) error {
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRepo) InsertPasswordAccess(ctx context.Context, access PasswordAccess) error {
	access.ID = int64(len(r.accesses) + 1)
	r.accesses = append(r.accesses, access)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	allowed := make(map[int64]struct{}, len(filters.BranchIDs))
	for _, id := range filters.BranchIDs {
		allowed[id] = struct{}{}
	}
	var out []Entry
	for _, e := range r.entries {
		if _, ok := allowed[e.BranchID]; ok {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

type staticDirectory map[int64][]int64

func (d staticDirectory) ListActiveIDsByOrganization(ctx context.Context, orgID int64) ([]int64, error) {
	return d[orgID], nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := &memoryRepo{}
	guard := scope.NewGuard(staticDirectory{1: {10, 11}})
	return NewService(repo, guard), repo
}

func TestRecordRequiresActionEntityAndID(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	err := svc.Record(ctx, Entry{BranchID: 10, ActorID: 1, Action: "jobs:create"})
	require.ErrorIs(t, err, ErrIncompleteEntry)
	require.Empty(t, repo.entries)

	err = svc.Record(ctx, Entry{BranchID: 10, ActorID: 1, Action: "jobs:create", Entity: "job_card", EntityID: "7"})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)
	require.False(t, repo.entries[0].At.IsZero())
	require.NotEmpty(t, repo.entries[0].Ref)
}

func TestRecordPasswordAccessRequiresReason(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	err := svc.RecordPasswordAccess(ctx, PasswordAccess{JobID: 7, BranchID: 10, ActorID: 1})
	require.ErrorIs(t, err, ErrReasonRequired)

	err = svc.RecordPasswordAccess(ctx, PasswordAccess{JobID: 7, BranchID: 10, ActorID: 1, Reason: "customer on phone"})
	require.NoError(t, err)
	require.Len(t, repo.accesses, 1)
}

func TestQueryScopesToAccessibleBranches(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, branchID := range []int64{10, 11, 99} {
		require.NoError(t, svc.Record(ctx, Entry{
			BranchID: branchID, ActorID: 1,
			Action: "inventory:ADD", Entity: "inventory_item", EntityID: "3",
		}))
	}

	mgr := rbac.NewPrincipal(1, 1, rbac.RoleManager, []int64{10})
	entries, _, err := svc.Query(ctx, mgr, Filters{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(10), entries[0].BranchID)

	// Requesting an out-of-scope branch masks as not found.
	_, _, err = svc.Query(ctx, mgr, Filters{BranchIDs: []int64{99}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQueryRequiresCapability(t *testing.T) {
	svc, _ := newTestService()
	tech := rbac.NewPrincipal(2, 1, rbac.RoleTechnician, []int64{10})

	_, _, err := svc.Query(context.Background(), tech, Filters{})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
